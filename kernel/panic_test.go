package kernel

import (
	"bytes"
	"testing"

	"github.com/MORK-core/mork-mm/kernel/cpu"
	"github.com/MORK-core/mork-mm/kernel/kfmt/early"
)

type panicSink struct {
	bytes.Buffer
}

func (b *panicSink) WriteByte(c byte) { _ = b.Buffer.WriteByte(c) }

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
		early.SetSink(nil)
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	t.Run("with error", func(t *testing.T) {
		cpuHaltCalled = false
		sink := &panicSink{}
		early.SetSink(sink)
		err := &Error{Module: "test", Message: "panic test"}

		Panic(err)

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := sink.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("without error", func(t *testing.T) {
		cpuHaltCalled = false
		sink := &panicSink{}
		early.SetSink(sink)

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------\n"

		if got := sink.String(); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})
}
