package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lostfound/chatsync/internal/api"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/profile"
	"github.com/lostfound/chatsync/internal/qrtext"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const callTimeout = 30 * time.Second

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	name, err := profile.Resolve(*profileFlag)
	if err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	c, err := api.Dial(profile.SocketPath(name))
	if err != nil {
		fail(fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err))
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	ctl := &cli{c: c, json: *jsonFlag}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		err = ctl.status(ctx)
	case "rooms":
		err = ctl.rooms(ctx)
	case "open":
		err = ctl.open(ctx, rest)
	case "close":
		err = ctl.open(ctx, []string{""})
	case "messages":
		err = ctl.messages(ctx, rest)
	case "send":
		err = ctl.send(ctx, rest)
	case "send-file":
		err = ctl.sendFile(ctx, rest)
	case "search":
		err = ctl.search(ctx, rest)
	case "sync":
		err = ctl.sync(ctx)
	case "qr":
		err = ctl.qr(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--profile <name>] [--json] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show engine and profile status")
	fmt.Fprintln(os.Stderr, "  rooms                          List rooms")
	fmt.Fprintln(os.Stderr, "  open <room-id>                 Open a room on the daemon")
	fmt.Fprintln(os.Stderr, "  close                          Close the open room")
	fmt.Fprintln(os.Stderr, "  messages [room-id] [--before <ms>] [--limit <n>]")
	fmt.Fprintln(os.Stderr, "                                 Show messages, newest page first")
	fmt.Fprintln(os.Stderr, "  send <text>                    Send text to the open room")
	fmt.Fprintln(os.Stderr, "  send-file <path>               Send a file to the open room")
	fmt.Fprintln(os.Stderr, "  search <query>                 Search the archive")
	fmt.Fprintln(os.Stderr, "  sync                           Poll the open room now")
	fmt.Fprintln(os.Stderr, "  qr <message-id>                Show an attachment link as a QR code")
}

func fail(err error) {
	if st, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s\n", st.Message())
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

type cli struct {
	c    *api.Client
	json bool
}

func (c *cli) print(m proto.Message) bool {
	if !c.json {
		return false
	}
	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		return true
	}
	fmt.Println(string(out))
	return true
}

func (c *cli) status(ctx context.Context) error {
	st, err := c.c.GetStatus(ctx)
	if err != nil {
		return err
	}
	if c.print(st) {
		return nil
	}
	f := st.GetFields()
	fmt.Printf("Profile:  %s\n", f["profile"].GetStringValue())
	fmt.Printf("User:     %s\n", f["user_email"].GetStringValue())
	fmt.Printf("State:    %s\n", f["state"].GetStringValue())
	if r := f["room"].GetStructValue(); r != nil {
		room := api.Room(r)
		fmt.Printf("Room:     %s (%s)\n", room.DisplayName(), room.ID)
	}
	if cur := int64(f["cursor"].GetNumberValue()); cur > 0 {
		fmt.Printf("Synced:   %s\n", time.UnixMilli(cur).Format(time.DateTime))
	}
	fmt.Printf("Messages: %d loaded, %d archived\n", int(f["messages"].GetNumberValue()), int(f["archived_messages"].GetNumberValue()))
	fmt.Printf("Sending:  %d\n", int(f["sending"].GetNumberValue()))
	if e := f["error"].GetStringValue(); e != "" {
		fmt.Printf("Error:    %s\n", e)
	}
	fmt.Printf("Uptime:   %s\n", (time.Duration(f["uptime_ms"].GetNumberValue()) * time.Millisecond).Round(time.Second))
	if h, err := c.c.Health(ctx); err == nil {
		fmt.Printf("Health:   %s\n", h)
	}
	return nil
}

func (c *cli) rooms(ctx context.Context) error {
	resp, err := c.c.ListRooms(ctx)
	if err != nil {
		return err
	}
	if c.print(resp) {
		return nil
	}
	rooms := api.List(resp, "rooms")
	if len(rooms) == 0 {
		fmt.Println("No rooms.")
		return nil
	}
	if resp.GetFields()["offline"].GetBoolValue() {
		fmt.Println("(backend unreachable, showing archived rooms)")
	}
	for _, r := range rooms {
		room := api.Room(r)
		fmt.Printf("%-26s %-30s %s\n", room.ID, room.DisplayName(), room.Status)
	}
	return nil
}

func (c *cli) open(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: chatctl open <room-id>")
	}
	snap, err := c.c.SelectRoom(ctx, args[0])
	if err != nil {
		return err
	}
	if c.print(snap) {
		return nil
	}
	if r := snap.GetFields()["room"].GetStructValue(); r != nil {
		fmt.Printf("Opened %s (%s)\n", api.Room(r).DisplayName(), snap.GetFields()["state"].GetStringValue())
		return nil
	}
	fmt.Println("No room open.")
	return nil
}

func (c *cli) messages(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ContinueOnError)
	before := fs.Int64("before", 0, "only messages older than this Unix ms timestamp")
	limit := fs.Int("limit", 0, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	roomID := fs.Arg(0)

	resp, err := c.c.ListMessages(ctx, roomID, *before, *limit)
	if err != nil {
		return err
	}
	if c.print(resp) {
		return nil
	}
	for _, s := range api.List(resp, "messages") {
		printMessage(api.Message(s))
	}
	if resp.GetFields()["has_more"].GetBoolValue() {
		fmt.Println("(more: use --before with the oldest timestamp)")
	}
	return nil
}

func (c *cli) send(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("usage: chatctl send <text>")
	}
	if _, err := c.c.SendText(ctx, text); err != nil {
		return err
	}
	fmt.Println("Queued.")
	return nil
}

func (c *cli) sendFile(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: chatctl send-file <path>")
	}
	// The daemon reads the file, so relative paths must be made absolute here.
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if _, err := c.c.SendFile(ctx, path); err != nil {
		return err
	}
	fmt.Printf("Uploading %s.\n", filepath.Base(path))
	return nil
}

func (c *cli) search(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	if query == "" {
		return fmt.Errorf("usage: chatctl search <query>")
	}
	resp, err := c.c.SearchMessages(ctx, query, "", 0)
	if err != nil {
		return err
	}
	if c.print(resp) {
		return nil
	}
	results := api.List(resp, "results")
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, r := range results {
		m := api.Message(r)
		fmt.Printf("%s  %-12s %-24s %s\n", time.UnixMilli(m.Timestamp).Format(time.DateTime), m.RoomID, m.SenderEmail,
			r.GetFields()["snippet"].GetStringValue())
	}
	return nil
}

func (c *cli) sync(ctx context.Context) error {
	started, err := c.c.SyncNow(ctx)
	if err != nil {
		return err
	}
	if c.print(structpbBool("started", started)) {
		return nil
	}
	if started {
		fmt.Println("Polling.")
	} else {
		fmt.Println("Nothing to poll: no room open or a poll is already running.")
	}
	return nil
}

func (c *cli) qr(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: chatctl qr <message-id>")
	}
	resp, err := c.c.GetMessage(ctx, args[0])
	if err != nil {
		return err
	}
	msgs := api.List(resp, "messages")
	if len(msgs) == 0 {
		return fmt.Errorf("message %s not found", args[0])
	}
	m := api.Message(msgs[0])
	if m.Attachment == nil || m.Attachment.URL == "" {
		return fmt.Errorf("message %s has no uploaded attachment", args[0])
	}
	code, err := qrtext.Render(m.Attachment.URL, "  ")
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n  %s\n  %s\n", code, m.Attachment.FileName, m.Attachment.URL)
	return nil
}

func printMessage(m chat.Message) {
	mark := ""
	switch m.State {
	case chat.Pending:
		mark = " [sending]"
	case chat.Failed:
		mark = " [failed]"
	}
	fmt.Printf("%s  %s%s\n", time.UnixMilli(m.Timestamp).Format(time.DateTime), m.SenderEmail, mark)
	if m.Body != "" {
		fmt.Printf("    %s\n", m.Body)
	}
	if a := m.Attachment; a != nil {
		fmt.Printf("    file: %s (%d bytes) %s\n", a.FileName, a.SizeBytes, a.URL)
	}
	fmt.Printf("    id: %s\n", m.ID)
}

func structpbBool(key string, v bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{key: structpb.NewBoolValue(v)}}
}
