package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"chat", "model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"chat", "model"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"chat", "model"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"chat", "model"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"chat", "model"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"chat", "model"},
	}

	StatsChatCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_calls_succeeded",
		Help:         "stats_chat_calls_succeeded provides total chat calls succeeded",
		RequiredTags: []string{"chat"},
	}

	StatsChatCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_calls_failed",
		Help:         "stats_chat_calls_failed provides total chat calls failed",
		RequiredTags: []string{"chat"},
	}

	StatsChatCallsRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_chat_calls_retried",
		Help:         "stats_chat_calls_retried provides total LLM calls retried on empty response",
		RequiredTags: []string{"chat"},
	}

	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}

	StatsMCPCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_calls_succeeded",
		Help:         "stats_mcp_calls_succeeded provides total MCP requests succeeded",
		RequiredTags: []string{"server", "method"},
	}

	StatsMCPCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_mcp_calls_failed",
		Help:         "stats_mcp_calls_failed provides total MCP requests failed",
		RequiredTags: []string{"server", "method"},
	}
)

// Perf
var (
	PerfChatRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_chat_run",
		Help:         "perf_chat_run provides duration of chat run",
		RequiredTags: []string{"chat"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of LLM call",
		RequiredTags: []string{"chat", "model"},
	}

	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"tool"},
	}

	PerfMCPCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_mcp_call",
		Help:         "perf_mcp_call provides duration of MCP request",
		RequiredTags: []string{"server", "method"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfChatRun,
	&PerfLLMCall,
	&PerfMCPCall,
	&PerfToolCall,
	&StatsChatCallsFailed,
	&StatsChatCallsRetried,
	&StatsChatCallsSucceeded,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
	&StatsMCPCallsFailed,
	&StatsMCPCallsSucceeded,
	&StatsToolCallsFailed,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
}
