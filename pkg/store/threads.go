package store

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/intercooperative/agoranet/pkg/agoraerr"
	"github.com/intercooperative/agoranet/pkg/bus"
	"github.com/intercooperative/agoranet/pkg/models"
	"github.com/intercooperative/agoranet/pkg/telemetry"
)

func nowUnix() int64 { return time.Now().UTC().Unix() }

// CreateThread implements create_thread: user-initiated, no uniqueness check
// on proposal_cid.
func CreateThread(title, proposalCID string) (models.Thread, error) {
	if err := requireOpen(); err != nil {
		return models.Thread{}, err
	}
	now := nowUnix()
	th := models.Thread{
		ID:          uuid.NewString(),
		Title:       title,
		ProposalCID: proposalCID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := putJSON(keyThreadMeta(th.ID), th); err != nil {
		return models.Thread{}, err
	}
	if err := putRaw(keyThreadList(th.CreatedAt, th.ID), []byte(th.ID)); err != nil {
		return models.Thread{}, err
	}
	publishThread(bus.OriginLocal, th, false)
	telemetry.StoreOpsTotal.WithLabelValues("create_thread", "ok").Inc()
	return th, nil
}

// UpsertResult distinguishes a fresh insert from a pre-existing hit for
// upsert_runtime_thread.
type UpsertResult int

const (
	Created UpsertResult = iota
	Existed
)

// UpsertRuntimeThread implements upsert_runtime_thread: looked up by
// proposal_cid, enforcing I4 uniqueness for Runtime-originated threads.
// Idempotent.
func UpsertRuntimeThread(proposalCID, title, createdByDID string, eventTS int64) (models.Thread, UpsertResult, error) {
	if err := requireOpen(); err != nil {
		return models.Thread{}, 0, err
	}
	if proposalCID == "" {
		return models.Thread{}, 0, agoraerr.New(agoraerr.KindInvalidInput, "proposal_cid required")
	}
	var existingID string
	found, err := getJSON(keyThreadByCID(proposalCID), &existingID)
	if err != nil {
		return models.Thread{}, 0, err
	}
	if found {
		var th models.Thread
		ok, err := getJSON(keyThreadMeta(existingID), &th)
		if err != nil {
			return models.Thread{}, 0, err
		}
		if ok {
			return th, Existed, nil
		}
	}

	th := models.Thread{
		ID:                uuid.NewString(),
		Title:             title,
		ProposalCID:       proposalCID,
		CreatedAt:         eventTS,
		UpdatedAt:         eventTS,
		RuntimeOriginated: true,
	}
	if err := putJSON(keyThreadMeta(th.ID), th); err != nil {
		return models.Thread{}, 0, err
	}
	if err := putJSON(keyThreadByCID(proposalCID), th.ID); err != nil {
		return models.Thread{}, 0, err
	}
	if err := putRaw(keyThreadList(th.CreatedAt, th.ID), []byte(th.ID)); err != nil {
		return models.Thread{}, 0, err
	}
	publishThread(bus.OriginLocal, th, false)
	return th, Created, nil
}

// ApplyFinalization implements apply_finalization: idempotent tag append
// plus a single finalization system message, enforcing I5.
func ApplyFinalization(proposalCID string, approved bool, eventTS int64) (models.Thread, error) {
	return applyFinalization(proposalCID, approved, eventTS, bus.OriginLocal)
}

func applyFinalization(proposalCID string, approved bool, eventTS int64, origin bus.Origin) (models.Thread, error) {
	if err := requireOpen(); err != nil {
		return models.Thread{}, err
	}
	var threadID string
	found, err := getJSON(keyThreadByCID(proposalCID), &threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if !found {
		return models.Thread{}, agoraerr.New(agoraerr.KindNotFound, "no thread for proposal_cid "+proposalCID)
	}
	var th models.Thread
	ok, err := getJSON(keyThreadMeta(threadID), &th)
	if err != nil {
		return models.Thread{}, err
	}
	if !ok {
		return models.Thread{}, agoraerr.New(agoraerr.KindNotFound, "thread row missing for "+threadID)
	}

	tag := " [REJECTED]"
	if approved {
		tag = " [APPROVED]"
	}

	alreadyFinalized := th.Finalized
	if !alreadyFinalized {
		th.Title = th.Title + tag
		th.Finalized = true
	}
	if eventTS > th.UpdatedAt {
		th.UpdatedAt = eventTS
	}
	if err := putJSON(keyThreadMeta(th.ID), th); err != nil {
		return models.Thread{}, err
	}

	existingSystemMsg, err := findFinalizationMessage(th.ID, proposalCID)
	if err != nil {
		return models.Thread{}, err
	}
	if existingSystemMsg == "" {
		msg := models.Message{
			ID:        uuid.NewString(),
			ThreadID:  th.ID,
			IsSystem:  true,
			CreatedAt: eventTS,
			Metadata: map[string]interface{}{
				"kind":     "finalization",
				"approved": approved,
				"cid":      proposalCID,
			},
		}
		if err := saveMessage(msg, origin); err != nil {
			return models.Thread{}, err
		}
	}

	if !alreadyFinalized {
		publishFinalization(origin, th.ID, proposalCID, approved, eventTS)
	}
	return th, nil
}

func publishFinalization(origin bus.Origin, threadID, proposalCID string, approved bool, eventTS int64) {
	payload, _ := marshalForBus(struct {
		ProposalCID string `json:"proposal_cid"`
		Approved    bool   `json:"approved"`
		EventTS     int64  `json:"event_ts"`
	}{proposalCID, approved, eventTS})
	Bus.Publish(bus.ChangeRecord{
		Origin:   origin,
		Kind:     bus.EntityFinalize,
		ThreadID: threadID,
		EntityID: proposalCID,
		Seq:      nextLocalSeq(),
		Payload:  payload,
	})
}

func findFinalizationMessage(threadID, proposalCID string) (string, error) {
	var foundID string
	err := scanPrefix(db, msgOrderPrefix(threadID), func(_, v []byte) bool {
		// the ordering index value is the raw message id (see saveMessage).
		msgID := string(v)
		var msg models.Message
		ok, err := getJSON(keyMsgRow(threadID, msgID), &msg)
		if err != nil || !ok || !msg.IsSystem {
			return true
		}
		kind, _ := msg.Metadata["kind"].(string)
		cid, _ := msg.Metadata["cid"].(string)
		if kind == "finalization" && cid == proposalCID {
			foundID = msgID
			return false
		}
		return true
	})
	return foundID, err
}

// GetThread implements get_thread.
func GetThread(id string) (models.Thread, bool, error) {
	if err := requireOpen(); err != nil {
		return models.Thread{}, false, err
	}
	var th models.Thread
	ok, err := getJSON(keyThreadMeta(id), &th)
	return th, ok, err
}

// OrderBy controls list_threads ordering.
type OrderBy string

const (
	OrderCreatedAtAsc  OrderBy = "created_at_asc"
	OrderCreatedAtDesc OrderBy = "created_at_desc"
)

// ListThreads implements list_threads(limit, offset, order_by, search?).
func ListThreads(limit, offset int, orderBy OrderBy, search string) ([]models.Thread, error) {
	if err := requireOpen(); err != nil {
		return nil, err
	}
	var ids []string
	if err := scanPrefix(db, threadListPrefix(), func(_, v []byte) bool {
		ids = append(ids, string(v))
		return true
	}); err != nil {
		return nil, err
	}

	threads := make([]models.Thread, 0, len(ids))
	for _, id := range ids {
		var th models.Thread
		ok, err := getJSON(keyThreadMeta(id), &th)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(th.Title), strings.ToLower(search)) {
			continue
		}
		threads = append(threads, th)
	}

	if orderBy == OrderCreatedAtDesc {
		sort.SliceStable(threads, func(i, j int) bool { return threads[i].CreatedAt > threads[j].CreatedAt })
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(threads) {
		return []models.Thread{}, nil
	}
	threads = threads[offset:]
	if limit > 0 && limit < len(threads) {
		threads = threads[:limit]
	}
	return threads, nil
}

func publishThread(origin bus.Origin, th models.Thread, deleted bool) {
	b, _ := marshalForBus(th)
	Bus.Publish(bus.ChangeRecord{
		Origin:   origin,
		Kind:     bus.EntityThread,
		ThreadID: th.ID,
		EntityID: th.ID,
		Seq:      nextLocalSeq(),
		Payload:  b,
		Deleted:  deleted,
	})
}
