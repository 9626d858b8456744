package reducer

import (
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

func assignQuest(s *projection.Store, p *event.QuestAssigned, ts string) Outcome {
	if p.Quest != nil {
		if s.UpsertQuest(p.Quest) == nil {
			return Malformed
		}
		return Applied
	}
	if p.QuestID == "" {
		return Malformed
	}
	s.UpsertQuest(&event.QuestPatch{
		ID:         p.QuestID,
		TemplateID: event.Some(p.TemplateID),
		Status:     event.Some(types.QuestActive),
		Objectives: event.Some([]types.Objective{}),
		StartedAt:  event.Some(ts),
	})
	return Applied
}

func setQuestStatus(s *projection.Store, p *event.QuestStatusChanged) Outcome {
	if p.Quest != nil {
		if s.UpsertQuest(p.Quest) == nil {
			return Malformed
		}
		return Applied
	}
	if p.QuestID == "" || p.Status == "" {
		return Malformed
	}
	s.UpsertQuest(&event.QuestPatch{ID: p.QuestID, Status: event.Some(p.Status)})
	return Applied
}

// chooseOption records the player's answer. A full message record wins;
// otherwise the chosen option is set on the message already held.
func chooseOption(s *projection.Store, p *event.MessageChoice) Outcome {
	if p.Message != nil {
		if s.UpsertMessage(p.Message) == nil {
			return Malformed
		}
		return Applied
	}
	m := s.Message(p.MessageID)
	if m == nil {
		return Malformed
	}
	chosen := p.ChosenOptionID
	if chosen == "" {
		chosen = p.OptionID
	}
	if chosen == "" {
		m.ChosenOptionID = nil
	} else {
		m.ChosenOptionID = &chosen
	}
	return Applied
}
