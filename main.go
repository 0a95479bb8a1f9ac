// Command opi replays Bitcoin metaprotocol inscription event streams
// (BRC-20, bitmap, SNS) into verifiable, hash-chained indexer state.
package main

import "github.com/bestinslot-xyz/OPI/cmd"

func main() {
	cmd.Execute()
}
