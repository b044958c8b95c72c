package vitals

import (
	"context"
	"math/rand"
	"sync"

	"github.com/temoto/vitals/helpers"
)

// Synthetic stands in for real sensors: every field is an independent uniform draw.
type Synthetic struct {
	mu sync.Mutex
	r  *rand.Rand
}

var _ Source = &Synthetic{}

// NewSynthetic with seed=0 uses current time.
func NewSynthetic(seed int64) *Synthetic {
	if seed == 0 {
		return &Synthetic{r: helpers.RandUnix()}
	}
	return &Synthetic{r: rand.New(rand.NewSource(seed))}
}

func (self *Synthetic) String() string { return "synthetic" }

func (self *Synthetic) Produce(ctx context.Context) (Reading, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	draw := func(rg Range) float64 { return float64(helpers.RandIntInclusive(self.r, rg.Min, rg.Max)) }
	return Reading{
		HeartRate:        draw(RangeHeartRate),
		SystolicBP:       draw(RangeSystolicBP),
		DiastolicBP:      draw(RangeDiastolicBP),
		Temperature:      draw(RangeTemperature10) / 10,
		BloodGlucose:     draw(RangeBloodGlucose),
		OxygenSaturation: draw(RangeOxygenSaturation),
	}, nil
}
