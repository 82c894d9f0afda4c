// Command ticketless runs the video evidence service and the operator tools
// around it: the daemon, one-shot worker runs, queue management, and local
// probing of individual clips.
package main
