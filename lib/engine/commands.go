package engine

import (
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Dispatch Table
// --------------------------------------------------------------------------

// command describes one store operation. arity is the exact number of
// arguments including the command name; negative means "at least".
type command struct {
	arity int
	fn    func(e *Engine, argv []string) Reply
}

var commands = map[string]command{
	"SET":       {arity: 3, fn: cmdSet},
	"GET":       {arity: 2, fn: cmdGet},
	"DEL":       {arity: 2, fn: cmdDel},
	"EXISTS":    {arity: 2, fn: cmdExists},
	"INCR":      {arity: 2, fn: cmdIncr},
	"DECR":      {arity: 2, fn: cmdDecr},
	"HSET":      {arity: 4, fn: cmdHSet},
	"HGET":      {arity: 3, fn: cmdHGet},
	"HDEL":      {arity: 3, fn: cmdHDel},
	"HLEN":      {arity: 2, fn: cmdHLen},
	"HKEYS":     {arity: 2, fn: cmdHKeys},
	"HVALS":     {arity: 2, fn: cmdHVals},
	"HGETALL":   {arity: 2, fn: cmdHGetAll},
	"LPUSH":     {arity: -3, fn: cmdLPush},
	"RPUSH":     {arity: -3, fn: cmdRPush},
	"LPOP":      {arity: 2, fn: cmdLPop},
	"RPOP":      {arity: 2, fn: cmdRPop},
	"LLEN":      {arity: 2, fn: cmdLLen},
	"LRANGE":    {arity: 4, fn: cmdLRange},
	"SADD":      {arity: -3, fn: cmdSAdd},
	"SREM":      {arity: -3, fn: cmdSRem},
	"SCARD":     {arity: 2, fn: cmdSCard},
	"SMEMBERS":  {arity: 2, fn: cmdSMembers},
	"SISMEMBER": {arity: 3, fn: cmdSIsMember},
	"EXPIRE":    {arity: 3, fn: cmdExpire},
	"EXPIREAT":  {arity: 3, fn: cmdExpireAt},
	"TTL":       {arity: 2, fn: cmdTTL},
	"PERSIST":   {arity: 2, fn: cmdPersist},
}

// applyLocked dispatches one command. Every handler runs with the
// engine lock held and sees the key post lazy-expiry.
func (e *Engine) applyLocked(argv []string) Reply {
	if len(argv) == 0 {
		return ErrReply(NewError(CodeInvalidArgument, "ERR empty command"))
	}
	name := strings.ToUpper(argv[0])
	cmd, ok := commands[name]
	if !ok {
		return ErrReply(Errorf(CodeUnknownCommand, "ERR unknown command '%s'", argv[0]))
	}
	if cmd.arity >= 0 && len(argv) != cmd.arity {
		return ErrReply(errWrongArity(strings.ToLower(name)))
	}
	if cmd.arity < 0 && len(argv) < -cmd.arity {
		return ErrReply(errWrongArity(strings.ToLower(name)))
	}
	if len(argv) > 1 {
		e.resolveExpiredLocked(argv[1])
	}
	return cmd.fn(e, argv)
}

// IsStoreCommand reports whether name dispatches to the store, as
// opposed to connection or transaction control.
func IsStoreCommand(name string) bool {
	_, ok := commands[strings.ToUpper(name)]
	return ok
}

// --------------------------------------------------------------------------
// String Commands
// --------------------------------------------------------------------------

func cmdSet(e *Engine, argv []string) Reply {
	key := argv[1]
	u := e.stageLocked(key)
	e.entries[key] = &entry{value: NewStringValue(argv[2])}
	return e.commitLocked(u, argv, StatusReply("OK"))
}

func cmdGet(e *Engine, argv []string) Reply {
	ent, ok := e.entries[argv[1]]
	if !ok {
		return ErrReply(errKeyNotFound)
	}
	if ent.value.Kind != KindString {
		return ErrReply(errWrongType)
	}
	return BulkReply(ent.value.Str())
}

func cmdDel(e *Engine, argv []string) Reply {
	key := argv[1]
	if _, ok := e.entries[key]; !ok {
		return IntReply(0)
	}
	u := e.stageLocked(key)
	if u.expire != 0 {
		e.expires.Delete(deadline{at: u.expire, key: key})
	}
	delete(e.entries, key)
	return e.commitLocked(u, argv, IntReply(1))
}

func cmdExists(e *Engine, argv []string) Reply {
	if _, ok := e.entries[argv[1]]; ok {
		return IntReply(1)
	}
	return IntReply(0)
}

// incrBy implements INCR and DECR: a missing key counts from zero, a
// non-integer string value is rejected without mutating anything.
func incrBy(e *Engine, argv []string, delta int64) Reply {
	key := argv[1]
	var current int64
	ent, ok := e.entries[key]
	if ok {
		if ent.value.Kind != KindString {
			return ErrReply(errWrongType)
		}
		n, err := strconv.ParseInt(ent.value.Str(), 10, 64)
		if err != nil {
			return ErrReply(errNotInteger)
		}
		current = n
	}

	u := e.stageLocked(key)
	next := current + delta
	if ok {
		ent.value.SetStr(strconv.FormatInt(next, 10))
	} else {
		e.entries[key] = &entry{value: NewStringValue(strconv.FormatInt(next, 10))}
	}
	return e.commitLocked(u, argv, IntReply(next))
}

func cmdIncr(e *Engine, argv []string) Reply { return incrBy(e, argv, 1) }
func cmdDecr(e *Engine, argv []string) Reply { return incrBy(e, argv, -1) }

// --------------------------------------------------------------------------
// Hash Commands
// --------------------------------------------------------------------------

// hashEntry fetches key as a hash, creating it when create is set.
func (e *Engine) hashEntry(key string, create bool) (*entry, *Error) {
	ent, ok := e.entries[key]
	if !ok {
		if !create {
			return nil, nil
		}
		ent = &entry{value: NewHashValue()}
		e.entries[key] = ent
		return ent, nil
	}
	if ent.value.Kind != KindHash {
		return nil, errWrongType
	}
	return ent, nil
}

func cmdHSet(e *Engine, argv []string) Reply {
	key, field, val := argv[1], argv[2], argv[3]
	u := e.stageLocked(key)
	ent, err := e.hashEntry(key, true)
	if err != nil {
		return ErrReply(err)
	}
	created := ent.value.HashSet(field, val)
	ok := IntReply(0)
	if created {
		ok = IntReply(1)
	}
	return e.commitLocked(u, argv, ok)
}

func cmdHGet(e *Engine, argv []string) Reply {
	ent, err := e.hashEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return ErrReply(errKeyNotFound)
	}
	val, ok := ent.value.HashGet(argv[2])
	if !ok {
		return ErrReply(errKeyNotFound)
	}
	return BulkReply(val)
}

func cmdHDel(e *Engine, argv []string) Reply {
	key := argv[1]
	ent, err := e.hashEntry(key, false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return IntReply(0)
	}
	u := e.stageLocked(key)
	if !ent.value.HashDel(argv[2]) {
		return IntReply(0)
	}
	// A collection emptied by its last removal ceases to exist.
	if ent.value.HashLen() == 0 {
		e.removeEntryLocked(key, ent)
	}
	return e.commitLocked(u, argv, IntReply(1))
}

func cmdHLen(e *Engine, argv []string) Reply {
	ent, err := e.hashEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return IntReply(0)
	}
	return IntReply(int64(ent.value.HashLen()))
}

func cmdHKeys(e *Engine, argv []string) Reply {
	ent, err := e.hashEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return BulkArrayReply(nil)
	}
	return BulkArrayReply(ent.value.HashKeys())
}

func cmdHVals(e *Engine, argv []string) Reply {
	ent, err := e.hashEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return BulkArrayReply(nil)
	}
	return BulkArrayReply(ent.value.HashVals())
}

func cmdHGetAll(e *Engine, argv []string) Reply {
	ent, err := e.hashEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return BulkArrayReply(nil)
	}
	return BulkArrayReply(ent.value.HashAll())
}

// --------------------------------------------------------------------------
// List Commands
// --------------------------------------------------------------------------

func (e *Engine) listEntry(key string, create bool) (*entry, *Error) {
	ent, ok := e.entries[key]
	if !ok {
		if !create {
			return nil, nil
		}
		ent = &entry{value: NewListValue()}
		e.entries[key] = ent
		return ent, nil
	}
	if ent.value.Kind != KindList {
		return nil, errWrongType
	}
	return ent, nil
}

// listPush implements LPUSH and RPUSH for one or more values.
func listPush(e *Engine, argv []string, head bool) Reply {
	key := argv[1]
	u := e.stageLocked(key)
	ent, err := e.listEntry(key, true)
	if err != nil {
		return ErrReply(err)
	}
	for _, val := range argv[2:] {
		if head {
			ent.value.ListPushHead(val)
		} else {
			ent.value.ListPushTail(val)
		}
	}
	return e.commitLocked(u, argv, IntReply(int64(ent.value.ListLen())))
}

func cmdLPush(e *Engine, argv []string) Reply { return listPush(e, argv, true) }
func cmdRPush(e *Engine, argv []string) Reply { return listPush(e, argv, false) }

func listPop(e *Engine, argv []string, head bool) Reply {
	key := argv[1]
	ent, err := e.listEntry(key, false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return ErrReply(errKeyNotFound)
	}
	u := e.stageLocked(key)
	var val string
	var ok bool
	if head {
		val, ok = ent.value.ListPopHead()
	} else {
		val, ok = ent.value.ListPopTail()
	}
	if !ok {
		return ErrReply(errKeyNotFound)
	}
	if ent.value.ListLen() == 0 {
		e.removeEntryLocked(key, ent)
	}
	return e.commitLocked(u, argv, BulkReply(val))
}

func cmdLPop(e *Engine, argv []string) Reply { return listPop(e, argv, true) }
func cmdRPop(e *Engine, argv []string) Reply { return listPop(e, argv, false) }

func cmdLLen(e *Engine, argv []string) Reply {
	ent, err := e.listEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return IntReply(0)
	}
	return IntReply(int64(ent.value.ListLen()))
}

func cmdLRange(e *Engine, argv []string) Reply {
	start, err1 := strconv.Atoi(argv[2])
	stop, err2 := strconv.Atoi(argv[3])
	if err1 != nil || err2 != nil {
		return ErrReply(errNotInteger)
	}
	ent, err := e.listEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return BulkArrayReply(nil)
	}
	return BulkArrayReply(ent.value.ListRange(start, stop))
}

// --------------------------------------------------------------------------
// Set Commands
// --------------------------------------------------------------------------

func (e *Engine) setEntry(key string, create bool) (*entry, *Error) {
	ent, ok := e.entries[key]
	if !ok {
		if !create {
			return nil, nil
		}
		ent = &entry{value: NewSetValue()}
		e.entries[key] = ent
		return ent, nil
	}
	if ent.value.Kind != KindSet {
		return nil, errWrongType
	}
	return ent, nil
}

func cmdSAdd(e *Engine, argv []string) Reply {
	key := argv[1]
	u := e.stageLocked(key)
	ent, err := e.setEntry(key, true)
	if err != nil {
		return ErrReply(err)
	}
	var added int64
	for _, member := range argv[2:] {
		if ent.value.SetAdd(member) {
			added++
		}
	}
	if added == 0 && u.existed {
		// Nothing changed; keep the version and the log untouched.
		return IntReply(0)
	}
	return e.commitLocked(u, argv, IntReply(added))
}

func cmdSRem(e *Engine, argv []string) Reply {
	key := argv[1]
	ent, err := e.setEntry(key, false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return IntReply(0)
	}
	u := e.stageLocked(key)
	var removed int64
	for _, member := range argv[2:] {
		if ent.value.SetRem(member) {
			removed++
		}
	}
	if removed == 0 {
		return IntReply(0)
	}
	if ent.value.SetLen() == 0 {
		e.removeEntryLocked(key, ent)
	}
	return e.commitLocked(u, argv, IntReply(removed))
}

func cmdSCard(e *Engine, argv []string) Reply {
	ent, err := e.setEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return IntReply(0)
	}
	return IntReply(int64(ent.value.SetLen()))
}

func cmdSMembers(e *Engine, argv []string) Reply {
	ent, err := e.setEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return BulkArrayReply(nil)
	}
	return BulkArrayReply(ent.value.SetMembers())
}

func cmdSIsMember(e *Engine, argv []string) Reply {
	ent, err := e.setEntry(argv[1], false)
	if err != nil {
		return ErrReply(err)
	}
	if ent == nil {
		return IntReply(0)
	}
	if ent.value.SetHas(argv[2]) {
		return IntReply(1)
	}
	return IntReply(0)
}

// --------------------------------------------------------------------------
// Expiration Commands
// --------------------------------------------------------------------------

func cmdExpire(e *Engine, argv []string) Reply {
	secs, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil || secs < 0 {
		return ErrReply(errNotInteger)
	}
	at := e.nowMillis() + secs*1000
	return e.expireAt(argv[1], at)
}

func cmdExpireAt(e *Engine, argv []string) Reply {
	at, err := strconv.ParseInt(argv[2], 10, 64)
	if err != nil || at < 0 {
		return ErrReply(errNotInteger)
	}
	return e.expireAt(argv[1], at)
}

// expireAt sets an absolute deadline on key. The logged record is
// always the resolved EXPIREAT form, so replay is independent of when
// it happens.
func (e *Engine) expireAt(key string, at int64) Reply {
	ent, ok := e.entries[key]
	if !ok {
		return IntReply(0)
	}
	u := e.stageLocked(key)
	if ent.expireAt != 0 {
		e.expires.Delete(deadline{at: ent.expireAt, key: key})
	}
	ent.expireAt = at
	e.scheduleExpiryLocked(key, at)

	record := []string{"EXPIREAT", key, strconv.FormatInt(at, 10)}
	rep := e.commitLocked(u, record, IntReply(1))

	// A deadline already in the past takes effect immediately.
	if !rep.IsError() {
		e.resolveExpiredLocked(key)
	}
	return rep
}

func cmdTTL(e *Engine, argv []string) Reply {
	ent, ok := e.entries[argv[1]]
	if !ok {
		return IntReply(-2)
	}
	if ent.expireAt == 0 {
		return IntReply(-1)
	}
	left := ent.expireAt - e.nowMillis()
	if left < 0 {
		left = 0
	}
	// Round up so a deadline 1ms away still reports one second.
	return IntReply((left + 999) / 1000)
}

func cmdPersist(e *Engine, argv []string) Reply {
	key := argv[1]
	ent, ok := e.entries[key]
	if !ok || ent.expireAt == 0 {
		return IntReply(0)
	}
	u := e.stageLocked(key)
	e.expires.Delete(deadline{at: ent.expireAt, key: key})
	ent.expireAt = 0
	record := []string{"PERSIST", key}
	return e.commitLocked(u, record, IntReply(1))
}

// removeEntryLocked deletes an entry and drops its expiry index item.
func (e *Engine) removeEntryLocked(key string, ent *entry) {
	if ent.expireAt != 0 {
		e.expires.Delete(deadline{at: ent.expireAt, key: key})
	}
	delete(e.entries, key)
}
