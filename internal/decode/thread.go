package decode

import (
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/offsets"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/vmi"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/walk"
)

// ReadThreads walks the thread list anchored in the process structure.
// Threads whose ids cannot be read are skipped; skipped reports how many.
func ReadThreads(r vmi.MemoryReader, ctx vmi.Context, proc Process, tbl offsets.Table, lim Limits) (threads []Thread, skipped int, err error) {
	lim = lim.orDefault()
	head := proc.Node.Add(tbl.Offset(offsets.ThreadListHead))
	c, err := walk.New(r, ctx, head, tbl.Offset(offsets.ThreadListLink), lim.MaxThreads)
	if err != nil {
		return nil, 0, &SubtraversalError{Owner: proc.Node, List: ListThreads, Stage: "walk", Err: err}
	}

	tidOff := tbl.Offset(offsets.ThreadUniqueId)
	ownerOff := tbl.Offset(offsets.ThreadOwnerProcessId)
	for node := range c.All() {
		tid, err := r.ReadUint32(ctx, node.Add(tidOff))
		if err != nil {
			skipped++
			continue
		}
		owner, err := r.ReadUint32(ctx, node.Add(ownerOff))
		if err != nil {
			skipped++
			continue
		}
		threads = append(threads, Thread{TID: tid, OwnerPID: owner, Node: node})
	}
	return threads, skipped, walkFault(proc.Node, ListThreads, c)
}
