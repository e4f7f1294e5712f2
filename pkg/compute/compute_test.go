package compute

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"jobmesh/pkg/model"
)

func TestRunGCD(t *testing.T) {
	tests := []struct{ x, y, want string }{
		{"48", "18", "6"},
		{"0", "5", "5"},
		{"0", "0", "0"},
		{"-12", "18", "6"},
		{"123456789012345678901234567890", "987654321098765432109876543210", "9000000000900000000090"},
	}
	for _, tt := range tests {
		job := model.NewGCDJob("g", tt.x, tt.y)
		if err := Run(context.Background(), job, 0); err != nil {
			t.Fatalf("Run(%s,%s): %v", tt.x, tt.y, err)
		}
		if job.Result != tt.want {
			t.Errorf("gcd(%s,%s) = %s, want %s", tt.x, tt.y, job.Result, tt.want)
		}
	}
}

func TestRunPrimality(t *testing.T) {
	tests := map[string]string{
		"2":          "prime",
		"97":         "prime",
		"-7":         "prime",
		"1":          "composite",
		"0":          "composite",
		"91":         "composite",
		"2147483647": "prime",
	}
	for x, want := range tests {
		job := model.NewPrimalityJob("p", x)
		if err := Run(context.Background(), job, 0); err != nil {
			t.Fatalf("Run(%s): %v", x, err)
		}
		if job.Result != want {
			t.Errorf("primality(%s) = %s, want %s", x, job.Result, want)
		}
	}
}

func TestRunRejectsMalformed(t *testing.T) {
	job := model.NewGCDJob("g", "x", "1")
	if err := Run(context.Background(), job, 0); !errors.Is(err, model.ErrMalformedInput) {
		t.Fatalf("err = %v, want ErrMalformedInput", err)
	}
}

func TestRunDelayHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := model.NewPrimalityJob("p", "5")
	if err := Run(ctx, job, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if job.Result != "" {
		t.Errorf("result set on cancelled run: %q", job.Result)
	}
}

func TestGCDDoesNotMutateInputs(t *testing.T) {
	x, y := big.NewInt(10), big.NewInt(4)
	GCD(x, y)
	if x.Int64() != 10 || y.Int64() != 4 {
		t.Fatal("GCD mutated its inputs")
	}
}
