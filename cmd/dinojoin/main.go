package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"dinojoin/pkg/config"
	"dinojoin/pkg/database"
	"dinojoin/pkg/logging"
	"dinojoin/pkg/pager"
	"dinojoin/pkg/repl"

	"github.com/google/uuid"
)

// Listens for SIGINT or SIGTERM and closes the database.
func setupCloseHandler(db *database.Database) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("closehandler invoked")
		db.Close()
		logging.Close()
		os.Exit(0)
	}()
}

// Start listening for connections at port `port`, running the REPL on each.
func startServer(r *repl.REPL, prompt string, port int) {
	handleConn := func(c net.Conn) {
		defer c.Close()
		r.Run(uuid.New(), prompt, c, c)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%v server started listening on localhost:%v\n", config.DBName,
		listener.Addr().(*net.TCPAddr).Port)
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Print(err)
			continue
		}
		go handleConn(conn)
	}
}

// Start the database.
func main() {
	// Set up flags.
	var promptFlag = flag.Bool("c", true, "use prompt?")
	var projectFlag = flag.String("project", "join", "choose REPLs: [join,pager,all]")
	var dbFlag = flag.String("db", "data/", "DB folder")
	var memFlag = flag.Bool("mem", false, "keep the database in memory instead of -db")
	var badgerFlag = flag.Bool("badger", false, "store pages in badger instead of a page file")
	var framesFlag = flag.Int("frames", config.MemSizeInPages, "number of buffer pool frames (F)")
	var recordsFlag = flag.Int64("records", config.RecordsPerPage, "records per page (C)")
	var portFlag = flag.Int("p", 0, "serve the REPL on this port instead of stdin")
	var verboseFlag = flag.Bool("v", false, "log at debug level")
	var logFlag = flag.String("log", "", "log file (default: stderr)")
	flag.Parse()

	level := logging.LevelWarn
	if *verboseFlag {
		level = logging.LevelDebug
	}
	if err := logging.Init(logging.Config{Level: level, OutputPath: *logFlag, Format: "text"}); err != nil {
		fmt.Println(err)
		return
	}
	defer logging.Close()

	cfg := config.Config{MemSizeInPages: *framesFlag, RecordsPerPage: *recordsFlag}
	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
		return
	}

	// Open the db.
	var db *database.Database
	var err error
	switch {
	case *memFlag:
		db, err = database.OpenMem(cfg)
	case *badgerFlag:
		db, err = database.OpenBadger(*dbFlag, cfg)
	default:
		db, err = database.Open(*dbFlag, cfg)
	}
	if err != nil {
		fmt.Println(err)
		return
	}
	defer db.Close()
	setupCloseHandler(db)

	// Get the right REPLs.
	prompt := config.GetPrompt(*promptFlag)
	repls := make([]*repl.REPL, 0)
	switch *projectFlag {
	case "join":
		repls = append(repls, database.DatabaseRepl(db))
	case "pager":
		repls = append(repls, pager.PagerRepl(db.GetDisk(), db.GetPager()))
	case "all":
		repls = append(repls, database.DatabaseRepl(db), pager.PagerRepl(db.GetDisk(), db.GetPager()))
	default:
		fmt.Println("must specify -project [join,pager,all]")
		return
	}

	// Combine the REPLs.
	r, err := repl.CombineRepls(repls)
	if err != nil {
		fmt.Println(err)
		return
	}

	if *portFlag != 0 {
		// Sessions share one pager, so commands run one at a time.
		startServer(r.Synchronized(&sync.Mutex{}), prompt, *portFlag)
	} else {
		r.Run(uuid.New(), prompt, nil, nil)
	}
}
