package model

import "time"

// Weather is a single station observation.
type Weather struct {
	ID                  string    `json:"_id" db:"id"`
	DeviceName          string    `json:"deviceName" db:"device_name"`
	Precipitation       float64   `json:"precipitation" db:"precipitation"`
	Time                time.Time `json:"time" db:"observed_at"`
	Latitude            float64   `json:"latitude" db:"latitude"`
	Longitude           float64   `json:"longitude" db:"longitude"`
	AtmosphericPressure float64   `json:"atmosphericPressure" db:"atmospheric_pressure"`
	MaxWindSpeed        float64   `json:"maxWindSpeed" db:"max_wind_speed"`
	SolarRadiation      float64   `json:"solarRadiation" db:"solar_radiation"`
	VaporPressure       float64   `json:"vaporPressure" db:"vapor_pressure"`
	Humidity            float64   `json:"humidity" db:"humidity"`
	WindDirection       float64   `json:"windDirection" db:"wind_direction"`
}

// WeatherProjection is the reduced view served by the projection endpoint.
type WeatherProjection struct {
	ID            string  `json:"_id" db:"id"`
	Precipitation float64 `json:"precipitation" db:"precipitation"`
	Latitude      float64 `json:"latitude" db:"latitude"`
	Longitude     float64 `json:"longitude" db:"longitude"`
}

// WeatherFields maps the JSON field names accepted in partial updates to
// their column names. _id is deliberately absent: ids are immutable.
var WeatherFields = map[string]string{
	"deviceName":          "device_name",
	"precipitation":       "precipitation",
	"time":                "observed_at",
	"latitude":            "latitude",
	"longitude":           "longitude",
	"atmosphericPressure": "atmospheric_pressure",
	"maxWindSpeed":        "max_wind_speed",
	"solarRadiation":      "solar_radiation",
	"vaporPressure":       "vapor_pressure",
	"humidity":            "humidity",
	"windDirection":       "wind_direction",
}
