// Package money provides integer-cent monetary arithmetic and the simulation clock.
package money

import (
	"fmt"
	"math"
)

// Cents is a signed count of cents. All money in the system is this type;
// floating point never enters a monetary computation.
type Cents int64

// Add returns a+b, panicking on overflow. Overflow is a fatal invariant
// violation per the error model.
func (c Cents) Add(other Cents) Cents {
	sum := c + other
	if (other > 0 && sum < c) || (other < 0 && sum > c) {
		panic(fmt.Sprintf("money: overflow in %d + %d", c, other))
	}
	return sum
}

// Sub returns a-b, panicking on overflow.
func (c Cents) Sub(other Cents) Cents {
	return c.Add(-other)
}

// Mul returns a*b, panicking on overflow.
func (c Cents) Mul(factor int64) Cents {
	if c == 0 || factor == 0 {
		return 0
	}
	product := int64(c) * factor
	if product/factor != int64(c) {
		panic(fmt.Sprintf("money: overflow in %d * %d", c, factor))
	}
	return Cents(product)
}

// ScaleBps applies a basis-point rate with truncating division:
// c * bps / 10_000. Used by every per-tick cost formula.
func (c Cents) ScaleBps(bps int64) Cents {
	return Cents(int64(c.Abs().Mul(bps)) / 10_000)
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		if c == Cents(math.MinInt64) {
			panic("money: abs overflow")
		}
		return -c
	}
	return c
}

// String renders cents as dollars for logs and traces.
func (c Cents) String() string {
	neg := ""
	v := c
	if v < 0 {
		neg = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", neg, v/100, v%100)
}

// Clock tracks simulation time. A tick is the smallest unit; a day is
// TicksPerDay ticks.
type Clock struct {
	Tick        int64
	TicksPerDay int64
}

// Day returns the zero-based day index of the current tick.
func (c Clock) Day() int64 {
	return c.Tick / c.TicksPerDay
}

// TickOfDay returns the tick index within the current day.
func (c Clock) TickOfDay() int64 {
	return c.Tick % c.TicksPerDay
}

// DayProgress returns how far through the day the clock is, in [0,1).
// This is the only float the clock exposes and it never feeds a cost.
func (c Clock) DayProgress() float64 {
	return float64(c.TickOfDay()) / float64(c.TicksPerDay)
}

// IsEndOfDay reports whether the current tick is the last tick of its day.
func (c Clock) IsEndOfDay() bool {
	return c.TickOfDay() == c.TicksPerDay-1
}
