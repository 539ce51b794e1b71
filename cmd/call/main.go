// SPDX-License-Identifier: MIT

// Command call is the one-shot client that requests a car for a
// (source, destination) floor pair from the controller.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/kempy-elevator/fabric/internal/config"
	"github.com/kempy-elevator/fabric/internal/floor"
	"github.com/kempy-elevator/fabric/internal/frame"
	"github.com/kempy-elevator/fabric/internal/netsession"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	callArgs, err := config.ParseCallArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	nc, err := net.Dial("tcp", netsession.DefaultAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call: unable to reach controller: %v\n", err)
		return 1
	}
	defer nc.Close()

	fc := frame.NewConn(nc)
	src := floor.Format(callArgs.Src)
	dst := floor.Format(callArgs.Dst)
	if err := fc.SendFrame(frame.Message{"CALL", src, dst}); err != nil {
		fmt.Fprintf(os.Stderr, "call: request failed: %v\n", err)
		return 1
	}

	reply, err := fc.RecvFrame()
	if err != nil {
		fmt.Fprintf(os.Stderr, "call: no reply from controller: %v\n", err)
		return 1
	}

	if len(reply) == 2 && reply[0] == "CAR" {
		fmt.Printf("Car %s is arriving.\n", reply[1])
		return 0
	}
	fmt.Println("Sorry, no car is available right now.")
	return 1
}
