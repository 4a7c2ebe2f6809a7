package hgexport

import (
	"errors"

	"gitlab.com/esr/git-remote-hg/internal/hgclient"
)

func asPushRejectedNewHead(err error) (*hgclient.PushRejectedNewHead, bool) {
	var rejected *hgclient.PushRejectedNewHead
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}

// pushAndAck drives §4.G's push and ack phases: a single push call covering
// every staged ref, bookmark pushkey replay on success, and rollback (mark
// store reload, strip, git-marks rewrite) on the one recoverable failure.
func (c *Consumer) pushAndAck(staged []stagedRef) ([]Ack, error) {
	newBranch := false
	for _, s := range staged {
		if s.NewBranch {
			newBranch = true
		}
	}

	err := c.HG.Push(c.UpstreamURL, newBranch)
	if err == nil {
		for _, mv := range c.bookmarkMoves {
			if pushErr := c.HG.PushBookmark(c.UpstreamURL, mv.Name); pushErr != nil {
				return nil, pushErr // a bookmark pushkey failure here is not the
				// new-head rollback case; propagate as fatal per §4.G.
			}
		}
		if err := c.Marks.Store(); err != nil {
			return nil, err
		}
		acks := make([]Ack, 0, len(staged))
		for _, s := range staged {
			acks = append(acks, Ack{Ref: s.Ref, OK: true, UpToDate: s.UpToDate})
		}
		return acks, nil
	}

	if _, ok := asPushRejectedNewHead(err); ok {
		if rollbackErr := c.rollback(); rollbackErr != nil {
			return nil, rollbackErr
		}
		acks := make([]Ack, 0, len(staged))
		for _, s := range staged {
			acks = append(acks, Ack{Ref: s.Ref, OK: false, Reason: "non-fast forward"})
		}
		return acks, nil
	}

	return nil, err // any other push failure is fatal, per §4.G and §7
}

// rollback implements §8 P6: no trace of the rejected commits survives in
// the mark store, the local clone, or the git marks file.
func (c *Consumer) rollback() error {
	c.Marks.Restore(c.checkpoint)

	if len(c.processedNodes) > 0 {
		// hg strip itself works out the lowest revision among the nodes
		// it is given; see DESIGN.md, Open Question (c).
		if err := c.HG.Strip(c.processedNodes); err != nil {
			return err
		}
	}

	if c.GitMarks != nil && c.GitMarks.Exists() {
		if err := c.GitMarks.RemoveMarks(c.processedMarks); err != nil {
			return err
		}
	}
	return nil
}
