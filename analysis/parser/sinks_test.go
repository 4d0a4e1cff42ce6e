package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/cris160/exploit-prover/analysis/core"
)

func findSinks(t *testing.T, source string) []core.Sink {
	t.Helper()
	finder := NewSinkFinder(New(), nil)
	sinks, err := finder.FindSinks([]byte(source))
	require.NoError(t, err)
	return sinks
}

func TestSQLInjectionDetection(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{
			name: "f-string query",
			source: `
def get_user(user_id):
    query = f"SELECT * FROM users WHERE id = {user_id}"
    cursor.execute(query)
`,
		},
		{
			name: "format method",
			source: `
def get_user(user_id):
    query = "SELECT * FROM users WHERE id = {}".format(user_id)
    cursor.execute(query)
`,
		},
		{
			name: "percent format",
			source: `
def get_user(user_id):
    query = "SELECT * FROM users WHERE id = %s" % user_id
    cursor.execute(query)
`,
		},
		{
			name: "concatenation",
			source: `
def get_user(user_id):
    query = "SELECT * FROM users WHERE id = " + user_id
    cursor.execute(query)
`,
		},
		{
			name: "multiline f-string",
			source: `
def get_user(user_id):
    query = f"""
        SELECT * FROM users
        WHERE id = {user_id}
        AND active = 1
    """
    cursor.execute(query)
`,
		},
		{
			name: "executemany",
			source: `
def insert_users(data):
    query = f"INSERT INTO users VALUES ({data})"
    cursor.executemany(query, data)
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := findSinks(t, tt.source)
			require.NotEmpty(t, sinks)
			assert.Equal(t, core.SinkSQLInjection, sinks[0].Type)
		})
	}
}

func TestSQLSinkTaintedVars(t *testing.T) {
	source := `
def get_user_simple(q):
    cursor.execute(q)
`
	sinks := findSinks(t, source)
	require.NotEmpty(t, sinks)
	assert.Contains(t, sinks[0].TaintedVars, "q")
}

func TestParameterizedQueriesAreSafe(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{
			name: "tuple parameters",
			source: `
def get_user(user_id):
    cursor.execute("SELECT * FROM users WHERE id = ?", (user_id,))
`,
		},
		{
			name: "dict parameters",
			source: `
def get_user(user_id):
    cursor.execute("SELECT * FROM users WHERE id = :id", {"id": user_id})
`,
		},
		{
			name: "literal-only query",
			source: `
def get_all_users():
    cursor.execute("SELECT * FROM users")
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := findSinks(t, tt.source)
			// The first-argument-only rule suppresses these entirely: the
			// query position holds no identifiers.
			for _, sink := range sinks {
				assert.NotContains(t, sink.TaintedVars, "user_id")
			}
		})
	}
}

func TestCommandInjectionDetection(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "os.system f-string", source: "import os\ndef ping(host):\n    os.system(f\"ping {host}\")\n"},
		{name: "os.popen", source: "import os\ndef run_cmd(cmd):\n    os.popen(cmd)\n"},
		{name: "subprocess.call", source: "import subprocess\ndef run_cmd(cmd):\n    subprocess.call(cmd, shell=True)\n"},
		{name: "subprocess.run", source: "import subprocess\ndef run_cmd(cmd):\n    subprocess.run(cmd, shell=True)\n"},
		{name: "subprocess.Popen", source: "import subprocess\ndef run_cmd(cmd):\n    subprocess.Popen(cmd, shell=True)\n"},
		{name: "subprocess.check_output", source: "import subprocess\ndef run_cmd(cmd):\n    subprocess.check_output(cmd, shell=True)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := findSinks(t, tt.source)
			require.NotEmpty(t, sinks)
			assert.Equal(t, core.SinkCommandInjection, sinks[0].Type)
		})
	}
}

func TestCodeInjectionDetection(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "eval", source: "def run_expr(expr):\n    result = eval(expr)\n"},
		{name: "exec", source: "def run_code(code):\n    exec(code)\n"},
		{name: "compile", source: "def compile_code(code):\n    compiled = compile(code, \"<string>\", \"exec\")\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := findSinks(t, tt.source)
			require.NotEmpty(t, sinks)
			assert.Equal(t, core.SinkCodeInjection, sinks[0].Type)
		})
	}
}

func TestDeserializationDetection(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "pickle.loads", source: "import pickle\ndef load_data(data):\n    obj = pickle.loads(data)\n"},
		{name: "pickle.load", source: "import pickle\ndef load_file(f):\n    obj = pickle.load(f)\n"},
		{name: "yaml.load", source: "import yaml\ndef load_yaml(data):\n    obj = yaml.load(data)\n"},
		{name: "marshal.loads", source: "import marshal\ndef load_bytecode(data):\n    obj = marshal.loads(data)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := findSinks(t, tt.source)
			require.NotEmpty(t, sinks)
			assert.Equal(t, core.SinkDeserialization, sinks[0].Type)
		})
	}
}

func TestSSRFDetection(t *testing.T) {
	source := `
import requests
def fetch(url):
    requests.get(url)
`
	sinks := findSinks(t, source)
	require.NotEmpty(t, sinks)
	assert.Equal(t, core.SinkSSRF, sinks[0].Type)
}

func TestXXEDetection(t *testing.T) {
	source := `
from lxml import etree
def parse_xml(data):
    doc = etree.fromstring(data)
`
	sinks := findSinks(t, source)
	require.NotEmpty(t, sinks)
	assert.Equal(t, core.SinkXXE, sinks[0].Type)
}

func TestNoSinksInSafeCode(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "clean functions", source: "def add(a, b):\n    return a + b\n\ndef greet(name):\n    return f\"Hello, {name}!\"\n"},
		{name: "empty source", source: ""},
		{name: "comments only", source: "# This is a comment\n# cursor.execute(query) - this should NOT be detected\n"},
		{name: "sink text inside string literal", source: "help_text = \"Use cursor.execute(query) to run SQL\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := findSinks(t, tt.source)
			assert.Empty(t, sinks)
		})
	}
}

func TestMultipleSinksInOneFile(t *testing.T) {
	source := `
def vulnerable1(user_id):
    cursor.execute(f"SELECT * FROM users WHERE id = {user_id}")

def vulnerable2(cmd):
    os.system(cmd)

def vulnerable3(expr):
    eval(expr)
`
	sinks := findSinks(t, source)
	assert.Len(t, sinks, 3)
}

func TestSinksInNestedContexts(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "nested function", source: "def outer():\n    def inner(query):\n        cursor.execute(query)\n    return inner\n"},
		{name: "class method", source: "class Database:\n    def execute_query(self, query):\n        self.cursor.execute(query)\n"},
		{name: "async function", source: "async def get_user(user_id):\n    query = f\"SELECT * FROM users WHERE id = {user_id}\"\n    await cursor.execute(query)\n"},
		{name: "lambda", source: "execute = lambda q: cursor.execute(q)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := findSinks(t, tt.source)
			assert.NotEmpty(t, sinks)
		})
	}
}

func TestSinkLineNumbers(t *testing.T) {
	source := `user_id = request.args.get('id')
query = f"SELECT * FROM users WHERE id = {user_id}"
cursor.execute(query)
`
	sinks := findSinks(t, source)
	require.Len(t, sinks, 1)
	assert.Equal(t, 3, sinks[0].Line)
	assert.Equal(t, 0, sinks[0].Column)
	assert.Equal(t, "cursor.execute(query)", sinks[0].CodeSnippet)
}

func TestTaintedVarsNeverEmpty(t *testing.T) {
	// A reported sink always names at least one contributing identifier.
	source := `
def handler(path, expr, data):
    os.system(path)
    eval(expr)
    pickle.loads(data)
`
	sinks := findSinks(t, source)
	require.NotEmpty(t, sinks)
	for _, sink := range sinks {
		assert.NotEmpty(t, sink.TaintedVars)
	}
}
