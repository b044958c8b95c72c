package vitals

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/juju/errors"
)

const registerCount = 6

// RegisterReader is the subset of modbus.Client used by Modbus source.
type RegisterReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

type ModbusConfig struct {
	Endpoint string
	SlaveID  byte
	Address  uint16
	Timeout  time.Duration
}

// Modbus reads a bedside gateway exposing six holding registers in Reading field order.
// Temperature register holds tenths of degree.
// Connection is opened lazily and discarded after any error.
type Modbus struct {
	mu      sync.Mutex
	config  ModbusConfig
	handler *modbus.TCPClientHandler
	client  RegisterReader
}

var _ Source = &Modbus{}

func NewModbus(config ModbusConfig) (*Modbus, error) {
	if config.Endpoint == "" {
		return nil, errors.NotValidf("modbus source endpoint empty")
	}
	if config.Timeout == 0 {
		config.Timeout = time.Second
	}
	return &Modbus{config: config}, nil
}

// NewModbusWithReader is for tests and custom transports.
func NewModbusWithReader(r RegisterReader, address uint16) *Modbus {
	return &Modbus{config: ModbusConfig{Address: address}, client: r}
}

func (self *Modbus) String() string { return fmt.Sprintf("modbus:%s", self.config.Endpoint) }

func (self *Modbus) Produce(ctx context.Context) (Reading, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if err := self.connect(); err != nil {
		return Reading{}, err
	}
	b, err := self.client.ReadHoldingRegisters(self.config.Address, registerCount)
	if err != nil {
		self.closeLocked()
		return Reading{}, errors.Annotatef(err, "modbus read address=%d", self.config.Address)
	}
	return DecodeRegisters(b)
}

func (self *Modbus) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closeLocked()
}

func (self *Modbus) connect() error {
	if self.client != nil {
		return nil
	}
	h := modbus.NewTCPClientHandler(self.config.Endpoint)
	h.Timeout = self.config.Timeout
	h.SlaveId = self.config.SlaveID
	if err := h.Connect(); err != nil {
		return errors.Annotatef(err, "modbus connect endpoint=%s", self.config.Endpoint)
	}
	self.handler = h
	self.client = modbus.NewClient(h)
	return nil
}

func (self *Modbus) closeLocked() error {
	var err error
	if self.handler != nil {
		err = self.handler.Close()
		self.handler = nil
		self.client = nil
	}
	return err
}

// DecodeRegisters converts big-endian register block into Reading.
// All six registers must be present, otherwise no reading is returned.
func DecodeRegisters(b []byte) (Reading, error) {
	if len(b) < registerCount*2 {
		return Reading{}, errors.NotValidf("modbus register block length=%d expected=%d", len(b), registerCount*2)
	}
	reg := func(i int) float64 { return float64(binary.BigEndian.Uint16(b[i*2:])) }
	return Reading{
		HeartRate:        reg(0),
		SystolicBP:       reg(1),
		DiastolicBP:      reg(2),
		Temperature:      reg(3) / 10,
		BloodGlucose:     reg(4),
		OxygenSaturation: reg(5),
	}, nil
}
