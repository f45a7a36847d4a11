// Package layout renders the tensor layout plan (§6) the out-of-scope
// runtime driver needs to marshal weights/biases/inputs into DRAM and to
// parse outputs: logical shape, padded shape, element bit width, and DRAM
// byte address for every tensor. No direct teacher analogue — the
// original writes inst.bin directly and has no separate layout artifact;
// this is written via stdlib encoding/json, matching the plain structured
// output the rest of the pack uses for debug/report artifacts.
package layout

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dnncompile/dnncompile/internal/tensor"
)

// TensorEntry is one tensor's layout record.
type TensorEntry struct {
	Name         string `json:"name"`
	Shape        []int  `json:"shape"`
	PaddedShape  []int  `json:"padded_shape"`
	BitWidth     int    `json:"bit_width"`
	DRAMAddress  uint64 `json:"dram_address"`
	SizeInBytes  uint64 `json:"size_in_bytes"`
}

// Plan is the full layout plan for one compiled graph.
type Plan struct {
	Tensors []TensorEntry `json:"tensors"`
}

// Build constructs a Plan from a graph's tensor descriptors. It is an
// error to build a plan before every descriptor has an assigned address
// (the graph compiler must run to completion first).
func Build(descs []*tensor.Descriptor) (Plan, error) {
	plan := Plan{Tensors: make([]TensorEntry, 0, len(descs))}
	for _, d := range descs {
		if !d.AddrAssigned() {
			return Plan{}, fmt.Errorf("layout: tensor %q has no assigned DRAM address", d.Name)
		}
		plan.Tensors = append(plan.Tensors, TensorEntry{
			Name:        d.Name,
			Shape:       append([]int(nil), d.Shape...),
			PaddedShape: d.FPGAShape(),
			BitWidth:    d.Dtype.Bits(),
			DRAMAddress: d.Addr,
			SizeInBytes: d.FPGASizeInBytes(),
		})
	}
	return plan, nil
}

// WriteJSON marshals plan as indented JSON to w.
func WriteJSON(w io.Writer, plan Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
