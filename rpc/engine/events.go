package engine

import (
	"sort"

	"github.com/ValentinKolb/sqc/lib/codec"
	"github.com/ValentinKolb/sqc/lib/sqerr"
)

// --------------------------------------------------------------------------
// Event Types
// --------------------------------------------------------------------------

// Event is a value delivered on the engine's event channel: *NotifyEvent,
// *ErrorEvent or *CloseEvent.
type Event interface {
	isEvent()
}

// NotifyEvent is an unsolicited notification. Name has the "notify" prefix removed.
type NotifyEvent struct {
	Name    string
	Records []codec.Record
}

// First returns the first record, or an empty one.
func (e *NotifyEvent) First() codec.Record {
	if len(e.Records) == 0 {
		return codec.NewRecord()
	}
	return e.Records[0]
}

// ErrorEvent is a diagnostic that did not reject any command: malformed
// notifications, unexpected lines, cache inconsistencies.
type ErrorEvent struct {
	Err error
}

// CloseEvent is always the last event. Err is nil for a local close.
type CloseEvent struct {
	Err error
}

func (*NotifyEvent) isEvent() {}
func (*ErrorEvent) isEvent()  {}
func (*CloseEvent) isEvent()  {}

// --------------------------------------------------------------------------
// Known Notifications
// --------------------------------------------------------------------------

// Notification names (without the "notify" prefix).
const (
	NotifyClientEnterView           = "cliententerview"
	NotifyClientLeftView            = "clientleftview"
	NotifyClientMoved               = "clientmoved"
	NotifyServerEdited              = "serveredited"
	NotifyChannelEdited             = "channeledited"
	NotifyChannelCreated            = "channelcreated"
	NotifyChannelDeleted            = "channeldeleted"
	NotifyChannelMoved              = "channelmoved"
	NotifyChannelDescriptionChanged = "channeldescriptionchanged"
	NotifyChannelPasswordChanged    = "channelpasswordchanged"
	NotifyTextMessage               = "textmessage"
	NotifyTokenUsed                 = "tokenused"
)

// shape lists the keys a known notification must carry. The server groups
// notifications of one kind into pipe separated records and sends the shared
// fields in the first record only, so only the identity key is checked on
// every record.
type shape struct {
	identity string   // required on every record, may be empty
	shared   []string // required on the first record
}

var shapes = map[string]shape{
	NotifyClientEnterView:           {identity: "clid"},
	NotifyClientLeftView:            {identity: "clid"},
	NotifyClientMoved:               {identity: "clid", shared: []string{"ctid"}},
	NotifyServerEdited:              {},
	NotifyChannelEdited:             {identity: "cid"},
	NotifyChannelCreated:            {identity: "cid"},
	NotifyChannelDeleted:            {identity: "cid"},
	NotifyChannelMoved:              {identity: "cid", shared: []string{"cpid"}},
	NotifyChannelDescriptionChanged: {identity: "cid"},
	NotifyChannelPasswordChanged:    {identity: "cid"},
	NotifyTextMessage:               {shared: []string{"targetmode", "msg"}},
	NotifyTokenUsed:                 {shared: []string{"token"}},
}

// IsKnownNotification reports whether name is a notification with a validated shape.
func IsKnownNotification(name string) bool {
	_, ok := shapes[name]
	return ok
}

// validateNotification checks a known notification for missing required
// fields. Unknown notifications always pass.
func validateNotification(name string, records []codec.Record) error {
	sh, ok := shapes[name]
	if !ok || (sh.identity == "" && len(sh.shared) == 0) {
		return nil
	}

	missing := make(map[string]struct{})
	if len(records) == 0 {
		records = []codec.Record{codec.NewRecord()}
	}
	for _, key := range sh.shared {
		if !records[0].Has(key) {
			missing[key] = struct{}{}
		}
	}
	if sh.identity != "" {
		for _, r := range records {
			if !r.Has(sh.identity) {
				missing[sh.identity] = struct{}{}
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	keys := make([]string, 0, len(missing))
	for key := range missing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return &sqerr.MalformedEventError{Event: codec.NotifyPrefix + name, Missing: keys}
}
