// Package compute holds the job payload computations. They are pure functions
// of the job operands.
package compute

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"jobmesh/pkg/model"
)

// primalityRounds matches the certainty the submit tools have always used.
const primalityRounds = 64

// Run fills job.Result. delay simulates a long-running computation and is
// interrupted by ctx.
func Run(ctx context.Context, job *model.Job, delay time.Duration) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ints, err := job.Ints()
	if err != nil {
		return err
	}

	switch job.Type {
	case model.JobTypeGCD:
		job.Result = GCD(ints[0], ints[1]).String()
	case model.JobTypePrimality:
		job.Result = Primality(ints[0])
	default:
		return fmt.Errorf("%w: unknown job type %q", model.ErrMalformedInput, job.Type)
	}
	return nil
}

// GCD returns the non-negative greatest common divisor; GCD(0, 0) is 0.
func GCD(x, y *big.Int) *big.Int {
	return new(big.Int).GCD(nil, nil, x, y)
}

// Primality reports "prime" or "composite" for |x|.
func Primality(x *big.Int) string {
	if new(big.Int).Abs(x).ProbablyPrime(primalityRounds) {
		return "prime"
	}
	return "composite"
}
