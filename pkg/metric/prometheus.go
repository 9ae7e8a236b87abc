// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metric

import (
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// namespace prefixes every exported metric name.
const namespace = "zircon"

// promName converts a metric name such as "/futex/waits" to the Prometheus
// name "zircon_futex_waits".
func promName(name string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, part := range strings.Split(name, "/") {
		if part == "" {
			continue
		}
		b.WriteByte('_')
		b.WriteString(strings.NewReplacer("-", "_", ".", "_").Replace(part))
	}
	return b.String()
}

func (m *Uint64Metric) family() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(promName(m.name)),
		Help: proto.String(m.description),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	if m.field.name == "" {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Counter: &dto.Counter{Value: proto.Float64(float64(m.values[0].Load()))},
		})
		return mf
	}
	for i, v := range m.field.allowedValues {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: []*dto.LabelPair{{
				Name:  proto.String(m.field.name),
				Value: proto.String(v),
			}},
			Counter: &dto.Counter{Value: proto.Float64(float64(m.values[i].Load()))},
		})
	}
	return mf
}

// WriteText writes every registered metric to w in the Prometheus text
// exposition format, sorted by name.
func WriteText(w io.Writer) error {
	for _, m := range snapshot() {
		if _, err := expfmt.MetricFamilyToText(w, m.family()); err != nil {
			return err
		}
	}
	return nil
}
