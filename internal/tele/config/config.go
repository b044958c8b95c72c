package tele_config

type Config struct {
	Enabled bool `hcl:"enable" yaml:"enable"`
	// AgentID is copied from agent.id, used as MQTT client id and topic segment.
	AgentID string `hcl:"-" yaml:"-"`

	MqttBroker        string `hcl:"mqtt_broker" yaml:"mqtt_broker"`
	MqttUsername      string `hcl:"mqtt_username" yaml:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password" yaml:"mqtt_password"`
	TopicPrefix       string `hcl:"topic_prefix" yaml:"topic_prefix"`
	KeepaliveSec      int    `hcl:"keepalive_sec" yaml:"keepalive_sec"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec" yaml:"network_timeout_sec"`
	QueueSize         int    `hcl:"queue_size" yaml:"queue_size"`
	LogDebug          bool   `hcl:"log_debug" yaml:"log_debug"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug" yaml:"mqtt_log_debug"`
}

const DefaultTopicPrefix = "vitals"

func (c Config) Prefix() string {
	if c.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return c.TopicPrefix
}

func (c Config) TopicState() string { return c.Prefix() + "/" + c.AgentID + "/state" }
func (c Config) TopicEvent() string { return c.Prefix() + "/" + c.AgentID + "/event" }
