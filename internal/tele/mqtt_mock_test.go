package tele

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

type MockMsg struct {
	T      string
	P      []byte
	Q      byte
	Retain bool
}

type MqttMock struct {
	Opt *mqtt.ClientOptions
	Pub chan MockMsg

	mu         sync.Mutex
	connected  bool
	connectErr error
	connects   int
}

func NewMqttMock() *MqttMock {
	return &MqttMock{Pub: make(chan MockMsg, 32)}
}

func (self *MqttMock) MockNew(opt *mqtt.ClientOptions) mqtt.Client {
	self.Opt = opt
	return self
}

func (self *MqttMock) Disconnect(uint) {
	self.mu.Lock()
	self.connected = false
	self.mu.Unlock()
}
func (self *MqttMock) IsConnected() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.connected
}
func (self *MqttMock) IsConnectionOpen() bool { return self.IsConnected() }

func (self *MqttMock) Connect() mqtt.Token {
	self.mu.Lock()
	self.connects++
	if self.connectErr != nil {
		self.mu.Unlock()
		return mockToken{self.connectErr}
	}
	self.connected = true
	self.mu.Unlock()
	if self.Opt != nil && self.Opt.OnConnect != nil {
		self.Opt.OnConnect(self)
	}
	return mockToken{nil}
}

func (self *MqttMock) Publish(topic string, qos byte, retain bool, payload interface{}) mqtt.Token {
	self.Pub <- MockMsg{T: topic, P: payload.([]byte), Q: qos, Retain: retain}
	return mockToken{nil}
}

func (self *MqttMock) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (self *MqttMock) AddRoute(string, mqtt.MessageHandler) { panic("not implemented") }
func (self *MqttMock) OptionsReader() mqtt.ClientOptionsReader {
	panic("not implemented")
}
func (self *MqttMock) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (self *MqttMock) Unsubscribe(...string) mqtt.Token { panic("not implemented") }

type mockToken struct{ error }

func (tok mockToken) Error() error                   { return tok.error }
func (tok mockToken) Wait() bool                     { return !errors.IsTimeout(tok.error) }
func (tok mockToken) WaitTimeout(time.Duration) bool { return !errors.IsTimeout(tok.error) }
