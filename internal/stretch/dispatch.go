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

import (
	"github.com/dcinzona/setiastro-pixinsight/internal/img"
	"github.com/dcinzona/setiastro-pixinsight/internal/stats"
)

// Computes the statistics which drive the stretch. Mono images are estimated over all samples.
// Three-channel images are always treated as color: each channel is estimated separately and
// the results are aggregated, so a single exponent and black point serve all channels.
// Returns the aggregate and the per-channel statistics
func Statistics(f *img.Image, est stats.Estimator) (s *stats.Stats, chans []*stats.Stats, err error) {
	if f.IsEmpty() {
		return nil, nil, newInputError("no image or empty image")
	}
	if est == nil {
		est = stats.Exact{}
	}
	switch f.Channels() {
	case 1:
		s, err = est.Estimate(f.Data)
		if err != nil {
			return nil, nil, &ExternalOperatorError{Op: "statistics", Err: err}
		}
		return s, []*stats.Stats{s}, nil
	case 3:
		chans = make([]*stats.Stats, 3)
		for c := range chans {
			chans[c], err = est.Estimate(f.Channel(c))
			if err != nil {
				return nil, nil, &ExternalOperatorError{Op: "statistics", Err: err}
			}
		}
		return stats.Aggregate(chans), chans, nil
	default:
		return nil, nil, newInputError("unsupported image with %d channels", f.Channels())
	}
}
