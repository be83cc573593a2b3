package identity

import (
	"testing"

	"github.com/matryer/is"
)

func TestWaterLevelDerivation(t *testing.T) {
	is := is.New(t)

	id := WaterLevel("1A2B3C4D5E6F")
	is.Equal(string(id), "WL-1A2B3C4D5E6F")

	// Derivation is a pure function of the input: same mac, same id.
	is.Equal(WaterLevel("1a2b3c4d5e6f"), id)
}

func TestWaterLevelDerivationWithSeparators(t *testing.T) {
	is := is.New(t)
	id := WaterLevel("1A:2B:3C:4D:5E:6F")
	is.Equal(string(id), "WL-1A2B3C4D5E6F")
}

func TestMoistureDerivation(t *testing.T) {
	is := is.New(t)
	is.Equal(string(Moisture("3", "13")), "MS-00003-00013")
	is.Equal(string(Moisture("016", "007")), "MS-00016-00007")
}

func TestGatewayDerivation(t *testing.T) {
	is := is.New(t)
	is.Equal(string(Gateway("3")), "GW-00003")
}

func TestWeatherDerivation(t *testing.T) {
	is := is.New(t)
	is.Equal(string(Weather("042")), "AOS-42")
	is.Equal(string(Weather("0")), "AOS-0")
}
