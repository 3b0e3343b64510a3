package cmclient

// onPacket implements the Dispatcher (spec.md §4.5): decode the header,
// latch session identity, run any internal handler, then route the frame to
// a waiting job callback or the generic message sink. Always runs on the
// event loop — directly for a top-level frame, recursively for each
// sub-frame of a Multi batch.
func (c *Client) onPacket(frame []byte) {
	hdr, body, err := decodeHeader(frame)
	if err != nil {
		c.failFatal(err)
		return
	}

	if hdr.Variant == HeaderProto && hdr.Proto != nil {
		c.session.latch(hdr.Proto.ClientSessionID, hdr.Proto.SteamID)
	}

	// Steps 5 and 7 (internal handler, then job/generic routing) both run
	// for every frame, in that order (spec.md §4.5) — unless the internal
	// handler fatally tore the connection down (encryption failure, Multi
	// sub-frame abort), in which case there is no longer a session to route
	// a reply or message against.
	genBefore := c.generation
	c.runInternalHandler(hdr, body)
	if c.generation != genBefore {
		return
	}

	sourceJob, targetJob := normalizeHeader(hdr)
	var reply ReplyFunc
	if sourceJob != NoJob {
		reply = c.makeReply(sourceJob)
	}

	if targetJob != NoJob {
		if cb, ok := c.jobs.take(targetJob); ok {
			cb(hdr, body, reply)
			return
		}
	}

	c.handlers.message(hdr, body, reply)
}
