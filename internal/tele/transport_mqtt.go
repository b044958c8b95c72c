package tele

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/vitals/helpers"
	tele_config "github.com/temoto/vitals/internal/tele/config"
	"github.com/temoto/vitals/log2"
)

const defaultKeepalive = 60 * time.Second

// paho loggers are package globals
var mqttLogOnce sync.Once

type transportMqtt struct {
	log            *log2.Log
	m              mqtt.Client
	mopt           *mqtt.ClientOptions
	networkTimeout time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}

	topicState string
	topicEvent string

	// test code sets newClient
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte, onConnect func()) error {
	self.log = log
	mqttLog := log.Clone(log2.LInfo)
	if teleConfig.MqttLogDebug {
		mqttLog.SetLevel(log2.LDebug)
	}
	mqttLogOnce.Do(func() {
		mqtt.CRITICAL = mqttLogger{mqttLog, log2.LInfo, "tele.mqtt critical: "}
		mqtt.ERROR = mqttLogger{mqttLog, log2.LInfo, "tele.mqtt error: "}
		mqtt.WARN = mqttLogger{mqttLog, log2.LDebug, "tele.mqtt warn: "}
		if teleConfig.MqttLogDebug {
			mqtt.DEBUG = mqttLogger{mqttLog, log2.LDebug, "tele.mqtt debug: "}
		}
	})

	self.topicState = teleConfig.TopicState()
	self.topicEvent = teleConfig.TopicEvent()

	self.networkTimeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	connectTimeout := self.networkTimeout * 3
	keepalive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, defaultKeepalive)

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topicState, willPayload, 1, true).
		SetCleanSession(true).
		SetClientID(teleConfig.AgentID).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepalive).
		SetMaxReconnectInterval(connectTimeout).
		SetOrderMatters(false).
		SetPingTimeout(self.networkTimeout).
		SetWriteTimeout(self.networkTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			self.log.Infof("tele mqtt connected broker=%s", teleConfig.MqttBroker)
			if onConnect != nil {
				onConnect()
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { self.log.Infof("tele mqtt connection lost err=%v", err) })
	if teleConfig.MqttUsername != "" {
		self.mopt.SetUsername(teleConfig.MqttUsername)
		self.mopt.SetPassword(teleConfig.MqttPassword)
	}
	if self.newClient == nil {
		self.newClient = mqtt.NewClient
	}
	self.m = self.newClient(self.mopt)

	self.stopCh = make(chan struct{})
	self.doneCh = make(chan struct{})
	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	close(self.stopCh)
	<-self.doneCh
	if self.m.IsConnected() {
		self.m.Disconnect(uint(self.networkTimeout / time.Millisecond))
	}
}

func (self *transportMqtt) SendState(payload []byte) bool {
	return self.publish(self.topicState, 1, true, payload, "publish state")
}

func (self *transportMqtt) SendEvent(payload []byte) bool {
	return self.publish(self.topicEvent, 0, false, payload, "publish event")
}

func (self *transportMqtt) publish(topic string, qos byte, retain bool, payload []byte, tag string) bool {
	if !self.m.IsConnected() {
		self.log.Debugf("tele %s topic=%s offline", tag, topic)
		return false
	}
	t := self.m.Publish(topic, qos, retain, payload)
	return self.tokenWait(t, tag) == nil
}

// online keeps trying initial connect, paho auto reconnect takes over after that.
func (self *transportMqtt) online() {
	defer close(self.doneCh)
	for {
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			return // success path
		}
		select {
		case <-self.stopCh:
			return
		case <-time.After(self.networkTimeout / 2):
		}
	}
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.networkTimeout) {
		err := errors.Timeoutf("tele mqtt %s", tag)
		self.log.Info(err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotatef(err, "tele mqtt %s", tag)
		self.log.Info(err.Error())
		return err
	}
	return nil
}

// mqttLogger adapts log2 to paho Logger interface.
type mqttLogger struct {
	log    *log2.Log
	level  log2.Level
	prefix string
}

func (self mqttLogger) Println(v ...interface{}) {
	self.log.Log(self.level, self.prefix+fmt.Sprint(v...))
}
func (self mqttLogger) Printf(format string, v ...interface{}) {
	self.log.Logf(self.level, self.prefix+format, v...)
}
