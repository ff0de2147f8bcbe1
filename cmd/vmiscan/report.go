package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bytedance/sonic"

	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/decode"
	"github.com/AbdullahAbdelhakeem6484/KVM-VMI-Project/internal/inventory"
)

// report is the printable form of a snapshot. Addresses are hex strings.
type report struct {
	Profile           string          `json:"profile"`
	HeadSymbol        string          `json:"head_symbol"`
	Head              string          `json:"head"`
	CaptureConsistent bool            `json:"capture_consistent"`
	Complete          bool            `json:"complete"`
	ProcessStop       string          `json:"process_stop"`
	Processes         []processReport `json:"processes"`
	Faults            []string        `json:"faults,omitempty"`
	SkippedThreads    int             `json:"skipped_threads,omitempty"`
}

type processReport struct {
	Node    string         `json:"node"`
	PID     *uint32        `json:"pid"`
	Name    *string        `json:"name"`
	DTB     string         `json:"dtb,omitempty"`
	Modules []moduleReport `json:"modules"`
	Threads []threadReport `json:"threads"`
}

type moduleReport struct {
	Name    *string `json:"name"`
	Base    string  `json:"base"`
	Size    uint32  `json:"size"`
	Partial bool    `json:"partial,omitempty"`
}

type threadReport struct {
	TID      uint32 `json:"tid"`
	OwnerPID uint32 `json:"owner_pid"`
	Node     string `json:"node"`
}

func newReport(snap *inventory.Snapshot, profile string) report {
	rep := report{
		Profile:           profile,
		HeadSymbol:        snap.HeadSymbol,
		Head:              snap.Head.String(),
		CaptureConsistent: snap.CaptureConsistent,
		Complete:          snap.Complete(),
		ProcessStop:       snap.ProcessStop.String(),
		Processes:         make([]processReport, 0, len(snap.Processes)),
		SkippedThreads:    snap.SkippedThreads,
	}
	for _, err := range snap.Faults {
		rep.Faults = append(rep.Faults, err.Error())
	}
	for _, p := range snap.Processes {
		rep.Processes = append(rep.Processes, newProcessReport(p, snap.Modules[p.Node], snap.Threads[p.Node]))
	}
	return rep
}

func newProcessReport(p decode.Process, mods []decode.Module, thrs []decode.Thread) processReport {
	pr := processReport{
		Node:    p.Node.String(),
		PID:     p.PID,
		Name:    p.ImageName,
		Modules: make([]moduleReport, 0, len(mods)),
		Threads: make([]threadReport, 0, len(thrs)),
	}
	if p.DirectoryTableBase != nil {
		pr.DTB = p.DirectoryTableBase.String()
	}
	for _, m := range mods {
		pr.Modules = append(pr.Modules, moduleReport{Name: m.Name, Base: m.Base.String(), Size: m.Size, Partial: m.Partial})
	}
	for _, t := range thrs {
		pr.Threads = append(pr.Threads, threadReport{TID: t.TID, OwnerPID: t.OwnerPID, Node: t.Node.String()})
	}
	return pr
}

func writeJSON(w io.Writer, rep report) error {
	data, err := sonic.ConfigStd.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func orUnknown(s *string) string {
	if s == nil {
		return "?"
	}
	return *s
}

func pidString(pid *uint32) string {
	if pid == nil {
		return "-"
	}
	return fmt.Sprint(*pid)
}

func writeText(w io.Writer, rep report, modules, threads bool) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "PID\tNAME\tNODE\tMODULES\tTHREADS\n")
	for _, p := range rep.Processes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", pidString(p.PID), orUnknown(p.Name), p.Node, len(p.Modules), len(p.Threads))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, p := range rep.Processes {
		if modules && len(p.Modules) > 0 {
			fmt.Fprintf(w, "\n%s (%s) modules:\n", orUnknown(p.Name), pidString(p.PID))
			tw = tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
			for _, m := range p.Modules {
				partial := ""
				if m.Partial {
					partial = "partial"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%#x\t%s\n", m.Base, orUnknown(m.Name), m.Size, partial)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}
		if threads && len(p.Threads) > 0 {
			fmt.Fprintf(w, "\n%s (%s) threads:\n", orUnknown(p.Name), pidString(p.PID))
			for _, t := range p.Threads {
				fmt.Fprintf(w, "  %d\n", t.TID)
			}
		}
	}

	fmt.Fprintf(w, "\n%d processes via %s, stop %s, consistent %t\n",
		len(rep.Processes), rep.HeadSymbol, rep.ProcessStop, rep.CaptureConsistent)
	for _, f := range rep.Faults {
		fmt.Fprintf(w, "fault: %s\n", f)
	}
	if rep.SkippedThreads > 0 {
		fmt.Fprintf(w, "skipped %d threads with unreadable ids\n", rep.SkippedThreads)
	}
	return nil
}
