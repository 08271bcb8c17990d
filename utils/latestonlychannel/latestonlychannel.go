/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package latestonlychannel

// Wrap creates a channel pipe which guarantees that the input channel will
// never block, discarding older entries once newer values arrive before
// the consumer has read them.  The consumer therefore always observes the
// most recent value, never a stale backlog.  You must close the input
// channel to release internal resources.
func Wrap[T any](inputCh <-chan T) <-chan T {
	outputCh := make(chan T)

	go func() {
	MainLoop:
		for {
			latestData, ok := <-inputCh
			if !ok {
				break MainLoop
			}

			// keep trying to send what we have while replacing it with
			// anything newer that shows up on the input side, this ensures
			// count(outputCh) <= count(inputCh)
		SendLoop:
			for {
				select {
				case outputCh <- latestData:
					break SendLoop
				case updatedData, ok := <-inputCh:
					if !ok {
						break MainLoop
					}

					latestData = updatedData
				}
			}
		}

		close(outputCh)
	}()

	return outputCh
}
