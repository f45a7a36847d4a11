package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dnncompile/dnncompile/internal/isa"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <instruction-binary>",
		Short: "Decode and pretty-print an instruction stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if len(data)%4 != 0 {
				return fmt.Errorf("inspect: %s is not a whole number of 32-bit words", args[0])
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()

			for i := 0; i+4 <= len(data); i += 4 {
				word := binary.LittleEndian.Uint32(data[i:])
				printWord(w, i/4, word)
			}
			return nil
		},
	}
	return cmd
}

func printWord(w *bufio.Writer, index int, word uint32) {
	op := isa.Opcode(word >> 28 & 0xF)
	switch op {
	case isa.COMPUTER, isa.COMPUTEI:
		f := isa.DecodeB(word)
		fmt.Fprintf(w, "%5d: %-10s src1_is_imm=%v fn=%d src1=%d src0=%d dest=%d\n",
			index, opcodeName(op), f.Src1IsImm, f.Fn, f.Src1, f.Src0, f.Dest)
	default:
		f := isa.DecodeA(word)
		fmt.Fprintf(w, "%5d: %-10s op_spec=%d loop_id=%d immediate=%d\n",
			index, opcodeName(op), f.OpSpec, f.LoopID, f.Immediate)
	}
}

func opcodeName(op isa.Opcode) string {
	switch op {
	case isa.SETUP:
		return "SETUP"
	case isa.LDMEM:
		return "LDMEM"
	case isa.STMEM:
		return "STMEM"
	case isa.RDBUF:
		return "RDBUF"
	case isa.WRBUF:
		return "WRBUF"
	case isa.GENADDRHI:
		return "GENADDRHI"
	case isa.GENADDRLO:
		return "GENADDRLO"
	case isa.LOOP:
		return "LOOP"
	case isa.BLOCKEND:
		return "BLOCK_END"
	case isa.BASEADDR:
		return "BASE_ADDR"
	case isa.PUBLOCK:
		return "PU_BLOCK"
	case isa.COMPUTER:
		return "COMPUTE_R"
	case isa.COMPUTEI:
		return "COMPUTE_I"
	default:
		return "UNKNOWN"
	}
}
