package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"

	"dinojoin/pkg/config"
)

// Connect to a dinojoin server started with -p and forward commands to it,
// either interactively from stdin or from a script file.
func main() {
	var port = flag.Int("p", 0, "port number")
	var host = flag.String("host", "localhost", "server host")
	var scriptFlag = flag.String("f", "", "send the commands in this file, then exit")
	flag.Parse()
	if *port == 0 {
		fmt.Println("usage: ./" + config.DBName + "_client -p <port> [-host <host>] [-f <script>]")
		return
	}

	var input io.Reader = os.Stdin
	if *scriptFlag != "" {
		script, err := os.Open(*scriptFlag)
		if err != nil {
			log.Fatal(err)
		}
		defer script.Close()
		input = script
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(*host, fmt.Sprint(*port)))
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(os.Stdout, conn)
		done <- err
	}()
	if _, err := io.Copy(conn, input); err != nil {
		log.Fatal(err)
	}
	// The server ends the session once it reads EOF; wait for its last output.
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}
	if err := <-done; err != nil {
		log.Fatal(err)
	}
}
