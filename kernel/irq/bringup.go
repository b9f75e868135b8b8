package irq

import (
	"golang.org/x/sync/errgroup"

	"github.com/nexuskernel/nexus/kernel/cpu"
)

// BringUp installs the interrupt fabric (IDT stub table, exception
// dispatcher, IPI receiver) on every online processor in registry by
// running install once per CPU concurrently. Unlike TLB shootdown's
// originator, which spins waiting for remote acknowledgement because that
// is the tested contract, per-CPU bring-up genuinely has nothing to do
// until every processor finishes, so it fans out with a wait group instead
// of a spin.
func BringUp(registry *cpu.Registry, install func(c cpu.CPU) error) error {
	var g errgroup.Group
	for _, c := range registry.All() {
		c := c
		g.Go(func() error { return install(c) })
	}
	return g.Wait()
}
