package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// JobType tags which computation a Job carries.
type JobType string

const (
	JobTypeGCD       JobType = "GCD"
	JobTypePrimality JobType = "PRIMALITY"
)

// Arity returns the number of operands the job type expects, or 0 for an
// unknown type.
func (t JobType) Arity() int {
	switch t {
	case JobTypeGCD:
		return 2
	case JobTypePrimality:
		return 1
	default:
		return 0
	}
}

// ParseJobType accepts the canonical tags plus a few CLI-friendly aliases.
func ParseJobType(s string) (JobType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GCD":
		return JobTypeGCD, nil
	case "PRIMALITY", "PRIME":
		return JobTypePrimality, nil
	default:
		return "", fmt.Errorf("%w: unknown job type %q", ErrMalformedInput, s)
	}
}

// JobSpec is the type-specific payload. Operands are decimal integers of
// arbitrary size.
type JobSpec struct {
	Operands []string `json:"operands"`
}

// JobStatus is bookkeeping filled in by the coordinator and the worker.
type JobStatus struct {
	Worker      string    `json:"worker,omitempty"` // worker that produced Result
	Attempts    int       `json:"attempts"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Job is one unit of submitted work.
//
// ID identifies a single pass through the admission queue. The coordinator
// overwrites it on every enqueue, retries included, so two attempts of the
// same logical job never share an ID.
type Job struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Type   JobType   `json:"type"`
	Spec   JobSpec   `json:"spec"`
	Result string    `json:"result,omitempty"`
	Status JobStatus `json:"status"`
}

// NewGCDJob builds a GCD job for x and y.
func NewGCDJob(name, x, y string) *Job {
	return &Job{Name: name, Type: JobTypeGCD, Spec: JobSpec{Operands: []string{x, y}}}
}

// NewPrimalityJob builds a primality job for x.
func NewPrimalityJob(name, x string) *Job {
	return &Job{Name: name, Type: JobTypePrimality, Spec: JobSpec{Operands: []string{x}}}
}

// Validate rejects jobs that must never enter the admission queue.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrMalformedInput)
	}
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("%w: job name is required", ErrMalformedInput)
	}
	want := j.Type.Arity()
	if want == 0 {
		return fmt.Errorf("%w: unknown job type %q", ErrMalformedInput, j.Type)
	}
	if len(j.Spec.Operands) != want {
		return fmt.Errorf("%w: %s job needs %d operand(s), got %d",
			ErrMalformedInput, j.Type, want, len(j.Spec.Operands))
	}
	if _, err := j.Ints(); err != nil {
		return err
	}
	return nil
}

// Ints parses the operands as big integers.
func (j *Job) Ints() ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(j.Spec.Operands))
	for _, op := range j.Spec.Operands {
		n, ok := new(big.Int).SetString(strings.TrimSpace(op), 10)
		if !ok {
			return nil, fmt.Errorf("%w: invalid integer %q", ErrMalformedInput, op)
		}
		out = append(out, n)
	}
	return out, nil
}

// Clone returns a deep copy, used when a job crosses an ownership boundary
// inside one process.
func (j *Job) Clone() *Job {
	c := *j
	c.Spec.Operands = append([]string(nil), j.Spec.Operands...)
	return &c
}

func (j *Job) String() string {
	return fmt.Sprintf("%s(%s %s)", j.Name, j.Type, strings.Join(j.Spec.Operands, ","))
}
