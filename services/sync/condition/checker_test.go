// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker_Check(t *testing.T) {
	c := New()

	t.Run("valid conditions compile", func(t *testing.T) {
		valid := []string{
			"tensor.Max() > 10.0",
			"tensor.HasNaN()",
			"tensor.HasNaN() || tensor.HasInf()",
			"tensor.Mean() < 0.5 && tensor.Std() > 1.0",
			"tensor.Norm() >= 100.0",
			"!(tensor.Min() == 0.0)",
		}
		for _, cond := range valid {
			assert.NoError(t, c.Check(cond), cond)
		}
	})

	t.Run("invalid conditions rejected", func(t *testing.T) {
		invalid := []string{
			"tensor.Max( >",          // syntax error
			"tensor.Exploit()",       // unknown method
			"os.Exit(1)",             // outside the allow-list
			"tensor.Mean()",          // not boolean
			"tensor.Max() + 1.0",     // arithmetic, not boolean
			"weights.Max() > 0.0",    // unknown identifier
		}
		for _, cond := range invalid {
			assert.Error(t, c.Check(cond), cond)
		}
	})

	t.Run("error names the condition", func(t *testing.T) {
		err := c.Check("tensor.Bogus()")
		assert.ErrorContains(t, err, "tensor.Bogus()")
	})
}
