package server

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/adred-codev/kvstore-core/internal/client"
	"github.com/adred-codev/kvstore-core/internal/keyspace"
	"github.com/adred-codev/kvstore-core/internal/object"
)

// Dispatch implements client.Dispatcher: it uppercases the command
// name and fans out to a handler, routed the same way an inbound
// frame's "type" field selects a registered callback.
func (s *Server) Dispatch(c *client.Client, argv [][]byte) {
	s.reg.CommandsProcessed.Inc()

	name := strings.ToUpper(string(argv[0]))
	args := argv[1:]

	switch name {
	case "PING":
		s.cmdPing(c, args)
	case "ECHO":
		s.cmdEcho(c, args)
	case "SELECT":
		s.cmdSelect(c, args)
	case "SET":
		s.cmdSet(c, args)
	case "GET":
		s.cmdGet(c, args)
	case "DEL":
		s.cmdDel(c, args)
	case "EXISTS":
		s.cmdExists(c, args)
	case "EXPIRE":
		s.cmdExpire(c, args)
	case "TTL":
		s.cmdTTL(c, args)
	case "OBJECT":
		s.cmdObject(c, args)
	case "CLIENT":
		s.cmdClient(c, args)
	case "SUBSCRIBE":
		s.cmdSubscribe(c, args)
	case "UNSUBSCRIBE":
		s.cmdUnsubscribe(c, args)
	case "PSUBSCRIBE":
		s.cmdPSubscribe(c, args)
	case "PUNSUBSCRIBE":
		s.cmdPUnsubscribe(c, args)
	case "PUBLISH":
		s.cmdPublish(c, args)
	case "PUBSUB":
		s.cmdPubSub(c, args)
	case "DUMP":
		s.cmdDump(c, args)
	case "RESTORE":
		s.cmdRestore(c, args)
	case "MIGRATE":
		s.cmdMigrate(c, args)
	case "COMMAND":
		s.cmdCommand(c, args)
	default:
		c.ReplyError("ERR unknown command '" + name + "'")
	}
}

func wrongArgs(c *client.Client, name string) {
	c.ReplyError("ERR wrong number of arguments for '" + strings.ToLower(name) + "' command")
}

func (s *Server) cmdPing(c *client.Client, args [][]byte) {
	switch len(args) {
	case 0:
		c.ReplyStatus("PONG")
	case 1:
		c.ReplyBulk(args[0])
	default:
		wrongArgs(c, "ping")
	}
}

func (s *Server) cmdEcho(c *client.Client, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(c, "echo")
		return
	}
	c.ReplyBulk(args[0])
}

func (s *Server) cmdSelect(c *client.Client, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(c, "select")
		return
	}
	n, err := strconv.Atoi(string(args[0]))
	if err != nil {
		c.ReplyError("ERR value is not an integer or out of range")
		return
	}
	c.SetSelectedDB(n)
	c.ReplyStatus("OK")
}

func (s *Server) cmdSet(c *client.Client, args [][]byte) {
	if len(args) < 2 {
		wrongArgs(c, "set")
		return
	}
	key, value := string(args[0]), args[1]

	var ttl time.Duration
	hasTTL := false
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "EX":
			if i+1 >= len(args) {
				c.ReplyError("ERR syntax error")
				return
			}
			secs, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil {
				c.ReplyError("ERR value is not an integer or out of range")
				return
			}
			ttl = time.Duration(secs) * time.Second
			hasTTL = true
			i++
		case "PX":
			if i+1 >= len(args) {
				c.ReplyError("ERR syntax error")
				return
			}
			millis, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil {
				c.ReplyError("ERR value is not an integer or out of range")
				return
			}
			ttl = time.Duration(millis) * time.Millisecond
			hasTTL = true
			i++
		default:
			c.ReplyError("ERR syntax error")
			return
		}
	}

	o := object.TryEncode(object.NewStringRaw(append([]byte(nil), value...)))
	s.keys.Add(key, o)
	if hasTTL {
		s.keys.SetExpire(key, time.Now().Add(ttl))
	}
	c.ReplyStatus("OK")
}

func (s *Server) cmdGet(c *client.Client, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(c, "get")
		return
	}
	o, ok := s.keys.Lookup(string(args[0]))
	if !ok {
		c.ReplyNilBulk()
		return
	}
	if o.Type() != object.TypeString {
		c.ReplyError("WRONGTYPE Operation against a key holding the wrong kind of value")
		return
	}
	o.SetLRU(atomic.LoadUint32(&s.lruClock))
	c.ReplyBulk(object.Decoded(o))
}

func (s *Server) cmdDel(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		wrongArgs(c, "del")
		return
	}
	n := 0
	for _, k := range args {
		if s.keys.Delete(string(k)) {
			n++
		}
	}
	c.ReplyInteger(int64(n))
}

func (s *Server) cmdExists(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		wrongArgs(c, "exists")
		return
	}
	n := 0
	for _, k := range args {
		if _, ok := s.keys.Lookup(string(k)); ok {
			n++
		}
	}
	c.ReplyInteger(int64(n))
}

func (s *Server) cmdExpire(c *client.Client, args [][]byte) {
	if len(args) != 2 {
		wrongArgs(c, "expire")
		return
	}
	key := string(args[0])
	secs, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		c.ReplyError("ERR value is not an integer or out of range")
		return
	}
	if _, ok := s.keys.Lookup(key); !ok {
		c.ReplyInteger(0)
		return
	}
	s.keys.SetExpire(key, time.Now().Add(time.Duration(secs)*time.Second))
	c.ReplyInteger(1)
}

func (s *Server) cmdTTL(c *client.Client, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(c, "ttl")
		return
	}
	key := string(args[0])
	if _, ok := s.keys.Lookup(key); !ok {
		c.ReplyInteger(-2)
		return
	}
	expiry, hasTTL := s.keys.GetExpire(key)
	if !hasTTL {
		c.ReplyInteger(-1)
		return
	}
	remaining := time.Until(expiry)
	if remaining < 0 {
		remaining = 0
	}
	c.ReplyInteger(int64(remaining.Seconds()))
}

func (s *Server) cmdObject(c *client.Client, args [][]byte) {
	if len(args) != 2 {
		wrongArgs(c, "object")
		return
	}
	sub := strings.ToUpper(string(args[0]))
	key := string(args[1])
	o, ok := s.keys.Lookup(key)
	if !ok {
		c.ReplyError("ERR no such key")
		return
	}
	switch sub {
	case "ENCODING":
		c.ReplyBulk([]byte(o.EncodingKind().Name()))
	case "REFCOUNT":
		c.ReplyInteger(int64(o.RefCount()))
	case "IDLETIME":
		c.ReplyInteger(int64(o.IdleTime(atomic.LoadUint32(&s.lruClock))))
	default:
		c.ReplyError("ERR syntax error")
	}
}

func (s *Server) cmdClient(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		wrongArgs(c, "client")
		return
	}
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "ID":
		c.ReplyInteger(int64(c.ID()))
	case "GETNAME":
		c.ReplyBulk([]byte(c.Name))
	case "SETNAME":
		if len(args) != 2 {
			wrongArgs(c, "client|setname")
			return
		}
		c.Name = string(args[1])
		c.ReplyStatus("OK")
	case "LIST":
		s.mu.Lock()
		var b bytes.Buffer
		for _, other := range s.clients {
			b.WriteString("id=")
			b.WriteString(strconv.FormatUint(other.ID(), 10))
			b.WriteString(" name=")
			b.WriteString(other.Name)
			b.WriteString("\n")
		}
		s.mu.Unlock()
		c.ReplyBulk(b.Bytes())
	case "KILL":
		if len(args) != 2 {
			wrongArgs(c, "client|kill")
			return
		}
		id, err := strconv.ParseUint(string(args[1]), 10, 64)
		if err != nil {
			c.ReplyError("ERR value is not an integer or out of range")
			return
		}
		s.mu.Lock()
		target, ok := s.clients[id]
		s.mu.Unlock()
		if !ok {
			c.ReplyError("ERR No such client")
			return
		}
		target.FreeAsync()
		c.ReplyStatus("OK")
	default:
		c.ReplyError("ERR unknown CLIENT subcommand")
	}
}

func (s *Server) cmdSubscribe(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		wrongArgs(c, "subscribe")
		return
	}
	c.SetClass(client.ClassPubSub)
	for _, ch := range args {
		s.hub.Subscribe(c, string(ch))
	}
}

func (s *Server) cmdUnsubscribe(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		s.hub.UnsubscribeAllChannels(c, true)
		return
	}
	for _, ch := range args {
		s.hub.Unsubscribe(c, string(ch), true)
	}
}

func (s *Server) cmdPSubscribe(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		wrongArgs(c, "psubscribe")
		return
	}
	c.SetClass(client.ClassPubSub)
	for _, pat := range args {
		s.hub.PSubscribe(c, string(pat))
	}
}

func (s *Server) cmdPUnsubscribe(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		s.hub.UnsubscribeAllPatterns(c, true)
		return
	}
	for _, pat := range args {
		s.hub.PUnsubscribe(c, string(pat), true)
	}
}

func (s *Server) cmdPublish(c *client.Client, args [][]byte) {
	if len(args) != 2 {
		wrongArgs(c, "publish")
		return
	}
	n := s.hub.Publish(string(args[0]), args[1])
	c.ReplyInteger(int64(n))
}

func (s *Server) cmdPubSub(c *client.Client, args [][]byte) {
	if len(args) == 0 {
		wrongArgs(c, "pubsub")
		return
	}
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "CHANNELS":
		pattern := "*"
		if len(args) == 2 {
			pattern = string(args[1])
		}
		channels := s.hub.Channels(pattern)
		c.ReplyMultiBulkHeader(len(channels))
		for _, ch := range channels {
			c.ReplyBulk([]byte(ch))
		}
	case "NUMSUB":
		names := make([]string, len(args)-1)
		for i, a := range args[1:] {
			names[i] = string(a)
		}
		counts := s.hub.NumSub(names)
		c.ReplyMultiBulkHeader(len(names) * 2)
		for i, name := range names {
			c.ReplyBulk([]byte(name))
			c.ReplyInteger(int64(counts[i]))
		}
	case "NUMPAT":
		c.ReplyInteger(int64(s.hub.NumPat()))
	default:
		c.ReplyError("ERR unknown PUBSUB subcommand")
	}
}

func (s *Server) cmdDump(c *client.Client, args [][]byte) {
	if len(args) != 1 {
		wrongArgs(c, "dump")
		return
	}
	o, ok := s.keys.Lookup(string(args[0]))
	if !ok {
		c.ReplyNilBulk()
		return
	}
	c.ReplyBulk(keyspace.Dump(o, s.persist))
}

func (s *Server) cmdRestore(c *client.Client, args [][]byte) {
	if len(args) < 3 {
		wrongArgs(c, "restore")
		return
	}
	key := string(args[0])
	ttlMillis, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		c.ReplyError("ERR value is not an integer or out of range")
		return
	}
	if _, exists := s.keys.Lookup(key); exists {
		c.ReplyError("BUSYKEY Target key name already exists.")
		return
	}
	o, err := keyspace.Restore(args[2], s.persist)
	if err != nil {
		c.ReplyError("ERR Bad data format")
		return
	}
	s.keys.Add(key, o)
	if ttlMillis > 0 {
		s.keys.SetExpire(key, time.Now().Add(time.Duration(ttlMillis)*time.Millisecond))
	}
	c.ReplyStatus("OK")
}

func (s *Server) cmdMigrate(c *client.Client, args [][]byte) {
	if len(args) != 5 {
		wrongArgs(c, "migrate")
		return
	}
	host := string(args[0])
	port, err := strconv.Atoi(string(args[1]))
	if err != nil {
		c.ReplyError("ERR Invalid port")
		return
	}
	key := string(args[2])
	dbid, err := strconv.Atoi(string(args[3]))
	if err != nil {
		c.ReplyError("ERR Invalid dbid")
		return
	}
	timeoutMillis, err := strconv.ParseInt(string(args[4]), 10, 64)
	if err != nil {
		c.ReplyError("ERR Invalid timeout")
		return
	}

	result, err := keyspace.Migrate(s.keys, s.persist, host, port, key, dbid, timeoutMillis)
	if err != nil {
		var ioErr *keyspace.IOError
		if errors.As(err, &ioErr) {
			c.ReplyError("IOERR " + err.Error())
		} else {
			// The target sent this error back itself (e.g. RESTORE
			// BUSYKEY); surface it verbatim rather than recategorizing
			// it as an IOERR.
			c.ReplyError(err.Error())
		}
		return
	}
	if result.NoKey {
		c.ReplyStatus("NOKEY")
		return
	}
	c.ReplyStatus("OK")
}

func (s *Server) cmdCommand(c *client.Client, args [][]byte) {
	c.ReplyMultiBulkHeader(0)
}
