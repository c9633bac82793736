package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/pitcache"
	"github.com/t7a/pitcache/errs"
	"github.com/t7a/pitcache/index"
	"github.com/t7a/pitcache/server"
)

// exit codes
const (
	rcNotFound = 2
	rcUsage    = 22
	rcFail     = 42
)

type Opts struct {
	Init      bool     `docopt:"init"`
	Put       bool     `docopt:"put"`
	Get       bool     `docopt:"get"`
	GetDigest bool     `docopt:"get-digest"`
	Info      bool     `docopt:"info"`
	Ls        bool     `docopt:"ls"`
	Rm        bool     `docopt:"rm"`
	RmContent bool     `docopt:"rm-content"`
	RmAll     bool     `docopt:"rm-all"`
	Bucket    bool     `docopt:"bucket"`
	Path      bool     `docopt:"content-path"`
	Serve     bool     `docopt:"serve"`
	Call      bool     `docopt:"call"`
	Key       string   `docopt:"<key>"`
	Digest    string   `docopt:"<digest>"`
	Command   string   `docopt:"<command>"`
	Algo      string   `docopt:"--algo"`
	Metadata  string   `docopt:"--metadata"`
	Size      string   `docopt:"--size"`
	Integrity string   `docopt:"--integrity"`
	Mirror    []string `docopt:"--mirror"`
	Socket    string   `docopt:"--socket"`
	Time      bool     `docopt:"-t"`
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {

	usage := `pitcache

Usage:
  pc init [--algo=<algo>]
  pc put [--algo=<algo>] [--metadata=<json>] [--size=<n>] [--integrity=<sri>] [--mirror=<dir>...] <key>
  pc get <key>
  pc get-digest <digest>
  pc info [-t] <key>
  pc ls
  pc rm <key>
  pc rm-content <digest>
  pc rm-all
  pc bucket <key>
  pc content-path <digest>
  pc serve [--socket=<path>]
  pc call [--socket=<path>] <command>

Options:
  -h --help          Show this screen.
  --version          Show version.
  --algo=<algo>      Hash algorithm: sha1, sha256, sha384, sha512, blake3.
  --metadata=<json>  JSON value stored with the entry.
  --size=<n>         Fail unless the content is exactly n bytes.
  --integrity=<sri>  Fail unless the content matches this digest.
  --mirror=<dir>     Also store into the cache at dir.
  --socket=<path>    Server socket; pc.sock in the cache dir if unset.
  -t                 Show the entry's timestamp.

The cache directory is $PCDIR, else the current directory.  bucket and
content-path print paths relative to it.
`
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpOnly}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.0")
	if err != nil || o == nil {
		return rcUsage
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return rcUsage
	}
	log.Debug(opts)

	if opts.Init {
		msg, err := create(opts.Algo)
		if err != nil {
			log.Error(err)
			return rcFail
		}
		fmt.Println(msg)
		return 0
	}

	c, err := pitcache.Open(cachedir())
	if err != nil {
		log.Error(err)
		return rcFail
	}

	switch true {
	case opts.Put:
		err = put(c, opts)
	case opts.Get:
		var res *pitcache.Result
		res, err = c.Get(opts.Key, pitcache.GetOpts{})
		if err == nil {
			_, err = os.Stdout.Write(res.Data)
		}
	case opts.GetDigest:
		var buf []byte
		buf, err = c.GetByDigest(opts.Digest, pitcache.GetOpts{})
		if err == nil {
			_, err = os.Stdout.Write(buf)
		}
	case opts.Info:
		err = info(c, opts.Key, opts.Time)
	case opts.Ls:
		err = ls(c)
	case opts.Rm:
		err = c.RmEntry(opts.Key)
	case opts.RmContent:
		err = c.RmContent(opts.Digest)
	case opts.RmAll:
		err = c.RmAll()
	case opts.Bucket:
		err = printRel(c, c.BucketPath(opts.Key))
	case opts.Path:
		var path string
		path, err = c.ContentPath(opts.Digest)
		if err == nil {
			err = printRel(c, path)
		}
	case opts.Serve:
		err = serve(c, socket(c, opts.Socket))
	case opts.Call:
		err = call(socket(c, opts.Socket), opts.Command)
	}
	if err != nil {
		log.Error(err)
		if errs.IsNotFound(err) {
			return rcNotFound
		}
		if errors.Is(err, syscall.EINVAL) {
			return rcUsage
		}
		return rcFail
	}
	return 0
}

func cachedir() (dir string) {
	dir = os.Getenv("PCDIR")
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			panic("can't get current directory")
		}
	}
	return
}

func socket(c *pitcache.Cache, flag string) string {
	if flag == "" {
		return filepath.Join(c.Dir, "pc.sock")
	}
	return flag
}

func create(algo string) (msg string, err error) {
	c, err := pitcache.Create(cachedir(), pitcache.Config{Algo: algo})
	if err != nil {
		return
	}
	return fmt.Sprintf("Initialized empty %s cache in %s", c.Algo, c.Dir), nil
}

func put(c *pitcache.Cache, opts Opts) (err error) {
	popts := pitcache.PutOpts{
		Algo:      opts.Algo,
		Integrity: opts.Integrity,
		Mirrors:   opts.Mirror,
	}
	if opts.Size != "" {
		popts.Size, err = strconv.ParseInt(opts.Size, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: size %q", syscall.EINVAL, opts.Size)
		}
	}
	if opts.Metadata != "" {
		if !json.Valid([]byte(opts.Metadata)) {
			return fmt.Errorf("%w: metadata is not JSON", syscall.EINVAL)
		}
		popts.Metadata = json.RawMessage(opts.Metadata)
	}
	in, err := c.PutReader(opts.Key, os.Stdin, popts)
	if err != nil {
		return
	}
	fmt.Println(in.String())
	return
}

func info(c *pitcache.Cache, key string, showTime bool) (err error) {
	entry, err := c.GetInfo(key)
	if err != nil {
		return
	}
	if entry == nil {
		return errs.NotFound(c.Dir, key, "")
	}
	printEntry(entry, showTime)
	return
}

func printEntry(e *index.Entry, showTime bool) {
	fmt.Printf("key: %s\n", e.Key)
	fmt.Printf("integrity: %s\n", e.Integrity)
	fmt.Printf("path: %s\n", e.Path)
	fmt.Printf("size: %d\n", e.Size)
	if len(e.Metadata) > 0 {
		fmt.Printf("metadata: %s\n", e.Metadata)
	}
	if showTime {
		fmt.Printf("time: %s\n", e.Time.Format("2006-01-02T15:04:05.000Z07:00"))
	}
}

// ls prints one "key<TAB>integrity" line per live key, sorted by key.
func ls(c *pitcache.Cache) (err error) {
	var lines []string
	out, errc := c.LsStream(context.Background())
	for e := range out {
		lines = append(lines, e.Key+"\t"+e.Integrity)
	}
	err = <-errc
	if err != nil {
		return
	}
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Println(line)
	}
	return
}

func serve(c *pitcache.Cache, sock string) (err error) {
	s, err := server.New(c)
	if err != nil {
		return
	}
	defer s.Close()
	err = s.Listen(sock)
	if err != nil {
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Infof("serving %s on %s", c.Dir, sock)
	return s.Serve(ctx)
}

// call sends one text command to a running server and prints the
// answer the way the matching local command would.
func call(sock, txt string) (err error) {
	req, err := server.Parse(txt)
	if err != nil {
		return
	}
	client, err := server.Dial(sock)
	if err != nil {
		return
	}
	defer client.Close()
	res, err := client.Do(req)
	if err != nil {
		return
	}
	switch req.Op {
	case server.OpPut:
		fmt.Println(res.Integrity)
	case server.OpGet, server.OpGetDigest:
		_, err = os.Stdout.Write(res.Data)
	case server.OpInfo:
		if res.Entry == nil {
			return errs.NotFound("", req.Key, "")
		}
		printEntry(res.Entry, false)
	case server.OpLs:
		for _, e := range res.Entries {
			fmt.Println(e.Key + "\t" + e.Integrity)
		}
	}
	return
}

// printRel prints path relative to the cache directory.
func printRel(c *pitcache.Cache, path string) (err error) {
	rel, err := filepath.Rel(c.Dir, path)
	if err != nil {
		return
	}
	fmt.Println(rel)
	return
}
