package agent

import (
	acp "github.com/coder/acp-go-sdk"

	"github.com/zhubert/gemini-acp/gemini"
	"github.com/zhubert/gemini-acp/manager"
)

// toContentBlocks converts ACP prompt content into manager blocks.
// Images, audio, resource links and binary resources become BlockUnsupported.
func toContentBlocks(blocks []acp.ContentBlock) []manager.ContentBlock {
	out := make([]manager.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch {
		case b.Text != nil:
			out = append(out, manager.TextBlock(b.Text.Text))
		case b.Resource != nil && b.Resource.Resource.TextResourceContents != nil:
			res := b.Resource.Resource.TextResourceContents
			block := manager.ResourceBlock(res.Uri, res.Text)
			if res.MimeType != nil {
				block.MimeType = *res.MimeType
			}
			out = append(out, block)
		default:
			out = append(out, manager.ContentBlock{Kind: manager.BlockUnsupported})
		}
	}
	return out
}

// toStopReason maps an orchestrator stop reason onto the protocol's.
func toStopReason(r manager.StopReason) acp.StopReason {
	if r == manager.StopReasonCancelled {
		return acp.StopReasonCancelled
	}
	return acp.StopReasonEndTurn
}

// sessionModes describes the permission modes as ACP session modes.
func sessionModes(current gemini.PermissionMode) *acp.SessionModeState {
	infos := gemini.PermissionModes()
	modes := make([]acp.SessionMode, 0, len(infos))
	for _, m := range infos {
		modes = append(modes, acp.SessionMode{
			Id:          acp.SessionModeId(m.Mode),
			Name:        m.Name,
			Description: acp.Ptr(m.Description),
		})
	}
	return &acp.SessionModeState{
		AvailableModes: modes,
		CurrentModeId:  acp.SessionModeId(current),
	}
}
