package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/MasterHesse/Crab-Cage/lib/monitor"
	"github.com/MasterHesse/Crab-Cage/lib/txn"
	"github.com/MasterHesse/Crab-Cage/rpc/resp"
)

// handleConnection runs the request loop for one client until it quits,
// disconnects or times out.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	addr := conn.RemoteAddr().String()
	client := s.mon.Clients().Add(addr)
	defer s.mon.Clients().Remove(client.ID)

	// Watches held by a dropped connection must not outlive it
	sess := txn.NewSession()
	defer txn.Reset(s.eng, sess)

	reader := resp.NewReader(conn)
	writer := resp.NewWriter(conn)
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	Logger.Debugf("Client %d connected from %s", client.ID, addr)

	for {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set read deadline: %v", err)
				return
			}
		}

		argv, err := reader.ReadCommand()

		// Case EOF: Connection closed by client
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			Logger.Debugf("Client %d disconnected", client.ID)
			return
		}

		// Case malformed input: tell the client, then drop it
		if errors.Is(err, resp.ErrProtocol) {
			_ = writer.WriteError("ERR Protocol error: " + err.Error())
			_ = writer.Flush()
			return
		}

		// Case other error (e.g. idle timeout): close connection
		if err != nil {
			Logger.Debugf("Client %d read error: %v", client.ID, err)
			return
		}

		if len(argv) == 0 {
			continue
		}

		start := time.Now()
		name := strings.ToUpper(argv[0])
		rep, quit := s.dispatch(sess, name, argv)

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}
		if err := writer.WriteReply(rep); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
			return
		}
		if err := writer.Flush(); err != nil {
			Logger.Errorf("Failed to flush response: %v", err)
			return
		}

		s.mon.Record(monitor.CommandEvent{
			ClientID: client.ID,
			Addr:     addr,
			Command:  strings.Join(argv, " "),
			Name:     name,
			Duration: time.Since(start),
		})

		if quit {
			Logger.Debugf("Client %d quit", client.ID)
			return
		}
	}
}

// dispatch routes one command. Control and introspection commands are
// answered here; everything else goes through the transaction layer so
// MULTI queueing applies to it.
func (s *Server) dispatch(sess *txn.Session, name string, argv []string) (rep engine.Reply, quit bool) {
	switch name {
	case "PING":
		return engine.StatusReply("PONG"), false

	case "QUIT":
		return engine.StatusReply("OK"), true

	case "SAVE":
		return s.cmdSave(argv), false

	case "INFO":
		return s.cmdInfo(argv), false

	case "SLOWLOG":
		return s.cmdSlowlog(argv), false

	case "CLIENT":
		return s.cmdClient(argv), false

	default:
		return txn.Execute(s.eng, sess, argv), false
	}
}

// --------------------------------------------------------------------------
// Control command implementations
// --------------------------------------------------------------------------

func (s *Server) cmdSave(argv []string) engine.Reply {
	if len(argv) != 1 {
		return wrongArity("save")
	}
	if s.pers == nil {
		return engine.ErrReply(engine.NewError(engine.CodePersistence, "ERR persistence is disabled"))
	}
	if err := s.pers.Snapshot(); err != nil {
		return engine.ErrReply(engine.Errorf(engine.CodePersistence, "ERR snapshot failed: %v", err))
	}
	return engine.StatusReply("OK")
}

func (s *Server) cmdInfo(argv []string) engine.Reply {
	if len(argv) > 2 {
		return wrongArity("info")
	}
	section := ""
	if len(argv) == 2 {
		section = argv[1]
	}
	return engine.BulkReply(s.mon.BuildInfo(s.infoSources(), section))
}

// infoSources snapshots the live readings INFO reports on.
func (s *Server) infoSources() monitor.InfoSources {
	src := monitor.InfoSources{
		Version:  Version,
		Endpoint: s.config.Endpoint,
		KeyCount: s.eng.Len,
	}
	if s.pers != nil {
		src.AOFEnabled = s.pers.AppendOnly()
		src.AOFSize = s.pers.AOFSize
		src.SnapshotEnabled = s.pers.SnapshotEnabled()
		src.LastSnapshot = s.pers.LastSnapshot
	}
	return src
}

func (s *Server) cmdSlowlog(argv []string) engine.Reply {
	if len(argv) != 2 {
		return wrongArity("slowlog")
	}
	switch strings.ToUpper(argv[1]) {
	case "GET":
		return engine.BulkReply(s.mon.Slowlog().String())
	case "LEN":
		return engine.IntReply(int64(s.mon.Slowlog().Len()))
	case "RESET":
		s.mon.Slowlog().Reset()
		return engine.StatusReply("OK")
	default:
		return engine.ErrReply(engine.Errorf(engine.CodeInvalidArgument,
			"ERR unknown SLOWLOG subcommand '%s'. must be one of GET, LEN, RESET", argv[1]))
	}
}

func (s *Server) cmdClient(argv []string) engine.Reply {
	if len(argv) != 2 {
		return wrongArity("client")
	}
	switch strings.ToUpper(argv[1]) {
	case "LIST":
		return engine.BulkReply(s.mon.Clients().List())
	default:
		return engine.ErrReply(engine.Errorf(engine.CodeInvalidArgument,
			"ERR unknown CLIENT subcommand '%s'. must be LIST", argv[1]))
	}
}

func wrongArity(name string) engine.Reply {
	return engine.ErrReply(engine.Errorf(engine.CodeInvalidArgument,
		"ERR wrong number of arguments for '%s'", name))
}
