package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/vitals/internal/vitals"
)

const (
	ContentTypeKafkaJSON = "application/vnd.kafka.json.v2+json"
	ContentTypeJSON      = "application/json"

	DefaultDirectPath = "/api/v1/vitals"
)

// Kind is wire shape of collector.
type Kind string

const (
	KindBroker Kind = "broker" // Kafka REST proxy
	KindDirect Kind = "direct" // application API
	KindAMQP   Kind = "amqp"
)

// Destination is where and how readings go. Fixed for process lifetime.
type Destination struct {
	Kind    Kind
	BaseURL string
	Topic   string // broker
	Path    string // direct

	// direct API auxiliary fields, not derived from reading
	PatientID   string
	Proteinuria int
	Severity    string
	Rationale   string

	// amqp
	Exchange   string
	RoutingKey string
}

func (d Destination) Validate() error {
	switch d.Kind {
	case KindBroker:
		if d.BaseURL == "" || d.Topic == "" {
			return errors.NotValidf("broker destination requires base_url and topic")
		}
	case KindDirect:
		if d.BaseURL == "" {
			return errors.NotValidf("direct destination requires base_url")
		}
		if d.PatientID == "" {
			return errors.NotValidf("direct destination requires patient_id")
		}
	case KindAMQP:
		if d.BaseURL == "" || d.RoutingKey == "" {
			return errors.NotValidf("amqp destination requires amqp_url and amqp_routing_key")
		}
	default:
		return errors.NotValidf("destination kind=%q", d.Kind)
	}
	return nil
}

func (d Destination) URL() string {
	base := strings.TrimRight(d.BaseURL, "/")
	switch d.Kind {
	case KindBroker:
		return base + "/topics/" + d.Topic
	case KindDirect:
		path := d.Path
		if path == "" {
			path = DefaultDirectPath
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return base + path
	}
	return base
}

func (d Destination) ContentType() string {
	if d.Kind == KindBroker {
		return ContentTypeKafkaJSON
	}
	return ContentTypeJSON
}

type BrokerRecord struct {
	Value vitals.Reading `json:"value"`
}

// BrokerEnvelope is Kafka REST proxy v2 produce request with one record.
type BrokerEnvelope struct {
	Records []BrokerRecord `json:"records"`
}

type DirectBody struct {
	PatientID   string  `json:"patientId"`
	Systolic    float64 `json:"systolic"`
	Diastolic   float64 `json:"diastolic"`
	Temperature float64 `json:"temperature"`
	HeartRate   float64 `json:"heartRate"`
	Glucose     float64 `json:"glucose"`
	SpO2        float64 `json:"spo2"`
	Proteinuria int     `json:"proteinuria"`
	Severity    string  `json:"severity"`
	Rationale   string  `json:"rationale"`
}

func (b DirectBody) Reading() vitals.Reading {
	return vitals.Reading{
		HeartRate:        b.HeartRate,
		SystolicBP:       b.Systolic,
		DiastolicBP:      b.Diastolic,
		Temperature:      b.Temperature,
		BloodGlucose:     b.Glucose,
		OxygenSaturation: b.SpO2,
	}
}

// Encode serializes reading in destination wire shape.
func (d Destination) Encode(r vitals.Reading) ([]byte, error) {
	var v interface{}
	switch d.Kind {
	case KindBroker:
		v = BrokerEnvelope{Records: []BrokerRecord{{Value: r}}}
	case KindDirect:
		v = DirectBody{
			PatientID:   d.PatientID,
			Systolic:    r.SystolicBP,
			Diastolic:   r.DiastolicBP,
			Temperature: r.Temperature,
			HeartRate:   r.HeartRate,
			Glucose:     r.BloodGlucose,
			SpO2:        r.OxygenSaturation,
			Proteinuria: d.Proteinuria,
			Severity:    d.Severity,
			Rationale:   d.Rationale,
		}
	case KindAMQP:
		v = r
	default:
		return nil, errors.NotValidf("destination kind=%q", d.Kind)
	}
	b, err := json.Marshal(v)
	return b, errors.Annotatef(err, "encode kind=%s", d.Kind)
}

// Decode is inverse of Encode, used by tests and `once` command output.
func (d Destination) Decode(b []byte) (vitals.Reading, error) {
	switch d.Kind {
	case KindBroker:
		var env BrokerEnvelope
		if err := json.Unmarshal(b, &env); err != nil {
			return vitals.Reading{}, errors.Annotate(err, "decode broker envelope")
		}
		if len(env.Records) != 1 {
			return vitals.Reading{}, errors.NotValidf("broker envelope records=%d", len(env.Records))
		}
		return env.Records[0].Value, nil
	case KindDirect:
		var body DirectBody
		if err := json.Unmarshal(b, &body); err != nil {
			return vitals.Reading{}, errors.Annotate(err, "decode direct body")
		}
		return body.Reading(), nil
	case KindAMQP:
		var r vitals.Reading
		err := json.Unmarshal(b, &r)
		return r, errors.Annotate(err, "decode amqp body")
	}
	return vitals.Reading{}, errors.NotValidf("destination kind=%q", d.Kind)
}
