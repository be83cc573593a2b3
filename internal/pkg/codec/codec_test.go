package codec

import (
	"testing"

	"github.com/matryer/is"
	"github.com/munbon/telemetry-core/pkg/types"
)

func envelope(body string) types.RawEnvelope {
	return types.RawEnvelope{
		Transport:   types.TransportEdgeHTTP,
		VendorBody:  []byte(body),
		ContentType: "application/json",
	}
}

func TestWaterLevelDecodeHappyPath(t *testing.T) {
	is := is.New(t)

	body := `{"deviceID":"abc","macAddress":"1A2B3C4D5E6F","latitude":13.75,"longitude":100.50,"RSSI":-65,"voltage":420,"level":15,"timestamp":1748850946551}`
	res, err := WaterLevelDecoder{}.Decode(envelope(body))
	is.NoErr(err)
	is.Equal(len(res.WaterLevel), 1)

	r := res.WaterLevel[0]
	is.Equal(string(r.SensorID), "WL-1A2B3C4D5E6F")
	is.Equal(r.LevelCM, 15.0)
	is.Equal(r.VoltageV, 4.20)
	is.Equal(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"), "2025-06-02T07:55:46.551Z")
	is.Equal(r.Quality, 1.0)

	is.Equal(len(res.Facts), 1)
	is.Equal(string(res.Facts[0].ID), "WL-1A2B3C4D5E6F")
	is.Equal(res.Facts[0].Family, types.FamilyWaterLevel)
}

func TestWaterLevelDecodeLowVoltageDegradesQuality(t *testing.T) {
	is := is.New(t)

	body := `{"macAddress":"1A2B3C4D5E6F","voltage":250,"level":15,"timestamp":1748841346551}`
	res, err := WaterLevelDecoder{}.Decode(envelope(body))
	is.NoErr(err)
	is.Equal(res.WaterLevel[0].Quality, 0.8)
}

func TestWaterLevelDecodeRejectsMissingMAC(t *testing.T) {
	is := is.New(t)

	_, err := WaterLevelDecoder{}.Decode(envelope(`{"voltage":420,"level":15,"timestamp":1748841346551}`))
	is.True(err != nil)

	var decErr *types.Error
	is.True(errorsAs(err, &decErr))
	is.Equal(decErr.Reason, types.ReasonMissingIdentity)
}

func TestWaterLevelDecodeRejectsEmptyBody(t *testing.T) {
	is := is.New(t)

	_, err := WaterLevelDecoder{}.Decode(envelope(""))
	is.True(err != nil)

	var decErr *types.Error
	is.True(errorsAs(err, &decErr))
	is.Equal(decErr.Reason, types.ReasonEmptyPayload)
}

func TestMoistureDecodeMultiSensorFanOut(t *testing.T) {
	is := is.New(t)

	body := `{
		"gw_id": "3", "gps_lat": "13.94551", "gps_lng": "100.73405",
		"gw_utc": "15:30:00", "gw_date": "2025/08/01",
		"sensor": [
			{"sensor_id":"13","sensor_utc":"15:36:34","sensor_date":"2025/08/01","humid_hi":"018","humid_low":"018","flood":"no","volt":"3.60"},
			{"sensor_id":"13","sensor_utc":"15:37:41","sensor_date":"2025/08/01","humid_hi":"020","humid_low":"019","flood":"no","volt":"3.60"}
		]
	}`

	res, err := MoistureDecoder{}.Decode(envelope(body))
	is.NoErr(err)
	is.Equal(len(res.Moisture), 2)

	for _, r := range res.Moisture {
		is.Equal(string(r.SensorID), "MS-00003-00013")
	}
	is.Equal(res.Moisture[0].Time.UTC().Format("2006-01-02T15:04:05Z"), "2025-08-01T15:36:34Z")
	is.Equal(res.Moisture[1].Time.UTC().Format("2006-01-02T15:04:05Z"), "2025-08-01T15:37:41Z")

	// One gateway fact plus one per sensor reading.
	gatewayFacts := 0
	for _, f := range res.Facts {
		if f.Family == types.FamilyGateway {
			gatewayFacts++
			is.Equal(string(f.ID), "GW-00003")
		}
	}
	is.Equal(gatewayFacts, 1)
}

func TestMoistureDecodeGatewayOnlyPayloadIsRegistryOnly(t *testing.T) {
	is := is.New(t)

	body := `{"gw_id":"3","gps_lat":"13.94551","gps_lng":"100.73405","ambient_humid":"77","ambient_temp":"31","battery":"4.1"}`
	res, err := MoistureDecoder{}.Decode(envelope(body))
	is.NoErr(err)
	is.Equal(len(res.Moisture), 0)
	is.Equal(len(res.Facts), 1)
	is.Equal(res.Facts[0].Family, types.FamilyGateway)
}

func TestMoistureDecodeFallsBackToGatewayTimeWhenSensorTimeMissing(t *testing.T) {
	is := is.New(t)

	body := `{
		"gw_id":"3","gw_utc":"15:30:00","gw_date":"2025/08/01",
		"sensor":[{"sensor_id":"13","humid_hi":"018","humid_low":"018","flood":"no"}]
	}`
	res, err := MoistureDecoder{}.Decode(envelope(body))
	is.NoErr(err)
	is.Equal(len(res.Moisture), 1)
	is.Equal(res.Moisture[0].Time.UTC().Format("2006-01-02T15:04:05Z"), "2025-08-01T15:30:00Z")
}

func TestWeatherDecodeHappyPath(t *testing.T) {
	is := is.New(t)

	body := `{"station_no":"042","datetime":"2025-08-01T09:00:00Z","lat":"14.0","lng":"101.0","rainfall_mm":"0.0","temperature_c":"31.5","humidity_pct":"68","wind_speed_ms":"1.2","battery_v":"12.4"}`
	res, err := WeatherDecoder{}.Decode(envelope(body))
	is.NoErr(err)
	is.Equal(len(res.Weather), 1)

	r := res.Weather[0]
	is.Equal(string(r.SensorID), "AOS-42")
	is.True(r.TemperatureC != nil)
	is.Equal(*r.TemperatureC, 31.5)
	is.True(r.WindMaxMS == nil)
}

func TestWeatherDecodeRejectsMissingStation(t *testing.T) {
	is := is.New(t)

	_, err := WeatherDecoder{}.Decode(envelope(`{"datetime":"2025-08-01T09:00:00Z","temperature_c":"31.5"}`))
	is.True(err != nil)
}

func TestDispatchByFamily(t *testing.T) {
	is := is.New(t)

	_, ok := Dispatch(types.FamilyWaterLevel)
	is.True(ok)
	_, ok = Dispatch(types.FamilyMoisture)
	is.True(ok)
	_, ok = Dispatch(types.FamilyWeather)
	is.True(ok)
	_, ok = Dispatch(types.FamilyGateway)
	is.True(ok)
}

func TestFamilyFromPath(t *testing.T) {
	is := is.New(t)

	f, ok := FamilyFromPath("water-level")
	is.True(ok)
	is.Equal(f, types.FamilyWaterLevel)

	f, ok = FamilyFromPath("moisture")
	is.True(ok)
	is.Equal(f, types.FamilyMoisture)

	_, ok = FamilyFromPath("unknown")
	is.True(!ok)
}

// errorsAs is a thin wrapper so the test file does not need a direct
// "errors" import alongside matryer/is in every assertion.
func errorsAs(err error, target **types.Error) bool {
	e, ok := err.(*types.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
