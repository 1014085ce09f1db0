// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stretch

import "math"

// Solves for the exponent L such that StretchValue(L, m) equals the target median t,
// given the current median m. Both must lie in (0,1). A median already at the target yields 0
func SolveExponent(m, t float64) (float64, error) {
	if !(t > 0 && t < 1) {
		return 0, newDomainError("solver", "target median %.6g outside (0,1)", t)
	}
	if !(m > 0 && m < 1) {
		return 0, newDomainError("solver", "median %.6g outside (0,1)", m)
	}
	if m == t {
		return 0, nil
	}
	arg := (m*t - t) / (m * (t - 1))
	if !(arg > 0) || math.IsInf(arg, 0) {
		return 0, newDomainError("solver", "log argument %.6g not positive for median %.6g and target %.6g", arg, m, t)
	}
	return math.Log(arg) / math.Log(3), nil
}
