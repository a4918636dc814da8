// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package duration_test

import (
	"time"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/neykov/brooklyn-server/core/duration"
)

type durationSuite struct{}

var _ = gc.Suite(&durationSuite{})

func (s *durationSuite) TestParseStdForms(c *gc.C) {
	for spelling, want := range map[string]time.Duration{
		"150ms":  150 * time.Millisecond,
		"1m30s":  90 * time.Second,
		" 5s ":   5 * time.Second,
		"2h":     2 * time.Hour,
		"0s":     0,
	} {
		d, err := duration.Parse(spelling)
		c.Assert(err, jc.ErrorIsNil, gc.Commentf("spelling %q", spelling))
		c.Check(d.Std(), gc.Equals, want, gc.Commentf("spelling %q", spelling))
	}
}

func (s *durationSuite) TestParseBareIntegerIsMillis(c *gc.C) {
	d, err := duration.Parse("250")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(d.Millis(), gc.Equals, int64(250))
}

func (s *durationSuite) TestParseWords(c *gc.C) {
	d, err := duration.Parse("forever")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(d.IsForever(), jc.IsTrue)
	c.Check(d.String(), gc.Equals, "forever")

	d, err = duration.Parse("Never")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(d.IsForever(), jc.IsTrue)

	d, err = duration.Parse("immediately")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(d, gc.Equals, duration.Of(0))
	c.Check(d.Positive(), jc.IsFalse)
}

func (s *durationSuite) TestParseRejectsGarbage(c *gc.C) {
	for _, spelling := range []string{"", "   ", "soon", "5 parsecs"} {
		_, err := duration.Parse(spelling)
		c.Check(err, jc.ErrorIs, errors.NotValid, gc.Commentf("spelling %q", spelling))
	}
}

func (s *durationSuite) TestExpBackoffDoubles(c *gc.C) {
	backoff := duration.ExpBackoff(64*time.Millisecond, 30*time.Second)
	var delays []time.Duration
	for attempt := 1; attempt <= 5; attempt++ {
		delays = append(delays, backoff(0, attempt))
	}
	c.Check(delays[0] >= 64*time.Millisecond, jc.IsTrue)
	for i := 1; i < len(delays); i++ {
		c.Check(delays[i], gc.Equals, 2*delays[i-1], gc.Commentf("attempt %d", i+1))
	}
}

func (s *durationSuite) TestExpBackoffCapped(c *gc.C) {
	backoff := duration.ExpBackoff(64*time.Millisecond, 30*time.Second)
	c.Check(backoff(0, 60), gc.Equals, 30*time.Second)
}
