package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

type RegisterMessage struct {
	Tilda             string         `json:"~"`
	Name              string         `json:"name"`
	ID                string         `json:"unique_id"`
	StateTopic        string         `json:"state_topic"`
	ValueTemplate     string         `json:"value_template"`
	UnitOfMeasurement string         `json:"unit_of_measurement,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	StateClass        string         `json:"state_class"`
	Device            RegisterDevice `json:"device"`
}

// Metric is one value of a Reading exposed as its own sensor.
type Metric struct {
	Slug        string
	Name        string
	Key         string // json key in StatePayload
	Unit        string
	DeviceClass string
}

// Metrics lists the values published per reading.
var Metrics = []Metric{
	{Slug: "temperature", Name: "Temperature", Key: "temp", Unit: "°C", DeviceClass: "temperature"},
	{Slug: "humidity", Name: "Humidity", Key: "hum", Unit: "%", DeviceClass: "humidity"},
	{Slug: "gas", Name: "Gas", Key: "gas", Unit: "ppm"},
}

// StatePayload is published on the device state topic for every reading.
type StatePayload struct {
	Reading
	Timestamp string `json:"timestamp"`
}
