package temperature

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// NTC thermistor on the payload board, in series with a fixed R25 resistor
const (
	kelvinOffset = 273.15
	t25          = 298.15 // kelvin
	r25          = 10_000 // ohms
	b25          = 3435   // kelvin

	// Divider supply voltage
	vin = 1.8
)

// ADS1115 single-ended read on the thermistor channel
const (
	adcAddr        = 0x48
	regConversion  = 0x00
	regConfig      = 0x01
	thermistorPin  = 0
	fullScale      = 4.096
	conversionWait = 10 * time.Millisecond
)

var ErrNoSensor = errors.New("temperature sensor not available")

// ADC returns the voltage at the thermistor divider
type ADC interface {
	Voltage() (float64, error)
}

type Sensor struct {
	mu  sync.Mutex
	adc ADC
}

var instance *Sensor
var once sync.Once

// Init opens the ADC. With mock set no hardware is touched and the sensor
// always reads 25 °C. A missing ADC only disables temperature reporting.
func Init(mock bool) {
	once.Do(func() {
		if mock {
			instance = New(MockADC{})
			log.Println("Temperature sensor using mock ADC")
			return
		}

		if _, err := host.Init(); err != nil {
			log.Printf("Failed to initialize I2C host: %v", err)
			return
		}

		bus, err := i2creg.Open("")
		if err != nil {
			log.Printf("Failed to open I2C bus: %v", err)
			return
		}

		adc := &I2CADC{dev: i2c.Dev{Bus: bus, Addr: adcAddr}, pin: thermistorPin}
		if _, err := adc.Voltage(); err != nil {
			log.Println("No ADC detected - temperature reporting disabled")
			return
		}

		instance = New(adc)
		log.Println("Temperature sensor initialized")
	})
}

// Get returns the sensor or nil when none was detected
func Get() *Sensor {
	return instance
}

func New(adc ADC) *Sensor {
	return &Sensor{adc: adc}
}

// Celsius reads the ADC and converts it to a temperature
func (s *Sensor) Celsius() (float64, error) {
	if s == nil {
		return 0, ErrNoSensor
	}

	s.mu.Lock()
	v, err := s.adc.Voltage()
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("unable to reach ADC: %w", err)
	}

	r, err := Resistance(v)
	if err != nil {
		return 0, err
	}
	return FromResistance(r), nil
}

// Resistance of the thermistor given the voltage across it
func Resistance(v float64) (float64, error) {
	if v <= 0 || v >= vin {
		return 0, fmt.Errorf("voltage %.3f V outside divider range (0, %.1f)", v, vin)
	}
	return v * r25 / (vin - v), nil
}

// FromResistance applies the B-parameter equation
func FromResistance(r float64) float64 {
	return 1/(math.Log(r/r25)/b25+1/t25) - kelvinOffset
}

// MockADC sits at the divider midpoint
type MockADC struct{}

func (MockADC) Voltage() (float64, error) {
	return vin / 2, nil
}

type I2CADC struct {
	dev i2c.Dev
	pin int
}

func (a *I2CADC) Voltage() (float64, error) {
	// OS=1 | MUX=AINx vs GND | PGA ±4.096 V | single-shot | 128 SPS | comparator off
	cfg := uint16(1<<15) | uint16(0x4+a.pin)<<12 | 0x1<<9 | 1<<8 | 0x4<<5 | 0x3
	if err := a.dev.Tx([]byte{regConfig, byte(cfg >> 8), byte(cfg & 0xFF)}, nil); err != nil {
		return 0, fmt.Errorf("failed to start conversion: %w", err)
	}

	time.Sleep(conversionWait)

	read := make([]byte, 2)
	if err := a.dev.Tx([]byte{regConversion}, read); err != nil {
		return 0, fmt.Errorf("failed to read conversion: %w", err)
	}
	return RawToVolts(read), nil
}

// RawToVolts decodes a big-endian two's complement conversion result
func RawToVolts(b []byte) float64 {
	value := (int(b[0]) << 8) | int(b[1])
	if value > 32767 {
		value -= 65536
	}
	return float64(value) * fullScale / 32768
}
