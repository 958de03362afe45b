// Package agentcore orchestrates conversations with a language model under
// admission control.
//
// A Client combines the building blocks found in the sub-packages:
//
//   - request: a priority queue of model calls gated by a sliding-window
//     rate limiter, with per-request timeouts, retries and statistics
//   - history: a message log with a comprehensive view and a curated view
//     that leaves out malformed or empty turns
//   - compaction: summarization of the older part of the history once it
//     grows past a token threshold, accepted only inside a ratio band
//   - tool: a registry, an argument validator and a tracker that runs tool
//     calls with bounded concurrency
//   - storage: an optional PostgreSQL archive of compressed-away entries
//
// # Quick Start
//
// Any function matching types.ModelFunc can drive the client. The
// provider/anthropic package adapts the Anthropic Messages API:
//
//	provider, _ := anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), nil)
//	client, err := agentcore.New(&agentcore.Config{
//	    Model:        provider.Model(),
//	    ModelName:    provider.Name(),
//	    SystemPrompt: "You are a helpful assistant",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop(ctx)
//
//	resp, _ := client.Chat(ctx, "Help me plan a REST API")
//	fmt.Println(resp.Text())
//
// # Priorities and Timeouts
//
// Every chat turn is a queued request. Urgent turns can jump the queue:
//
//	resp, err := client.Chat(ctx, "Status?",
//	    agentcore.WithPriority(queue.PriorityUrgent),
//	    agentcore.WithTimeout(10*time.Second),
//	)
//
// # Streaming and Structured Output
//
// ChatStream runs the same turn and hands each event to a handler as it
// arrives. Set Config.Stream to a streaming model, such as
// anthropic.Provider.Streamer; otherwise the reply is replayed whole.
//
//	resp, err := client.ChatStream(ctx, "Tell me a story", func(e streaming.Event) {
//	    if d, ok := e.(*streaming.TextDeltaEvent); ok {
//	        fmt.Print(d.Delta)
//	    }
//	})
//
// WithStructuredOutput asks for a JSON object matching a schema, returned
// in Response.Structured:
//
//	resp, err := client.Chat(ctx, "Weather in Cairo?",
//	    agentcore.WithStructuredOutput("weather", tool.Object(map[string]tool.PropertyDef{
//	        "city":    {Type: "string"},
//	        "celsius": {Type: "number"},
//	    }, "city")),
//	)
//
// # Tools
//
// Implement the tool.Tool interface, or wrap a function:
//
//	weather := tool.NewFuncTool("get_weather", "Current weather for a city",
//	    tool.Object(map[string]tool.PropertyDef{
//	        "city": {Type: "string", Description: "City name"},
//	    }, "city"),
//	    func(ctx context.Context, input json.RawMessage) (string, error) {
//	        return "sunny", nil
//	    },
//	)
//	client, _ := agentcore.New(cfg, agentcore.WithTools(weather))
//	result, err := client.RunTool(ctx, "get_weather", json.RawMessage(`{"city":"Cairo"}`))
//
// Calls are validated against the tool's schema before they are queued.
// Hooks registered with OnToolCall see every finished call.
//
// # Compression
//
// Before each turn the curated history is checked against the token
// threshold. When it is exceeded the older messages are summarized, the
// history is replaced by the summary followed by the recent tail, and the
// removed entries are handed to the configured Archive. A rejected or
// failed compression leaves the history untouched and the turn falls back
// to the most recent RecentWindow messages.
//
//	out := client.Compress(ctx, true)
//	if out.Succeeded() {
//	    fmt.Printf("ratio %.2f\n", out.Ratio)
//	}
package agentcore
