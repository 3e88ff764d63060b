package pipeline

import (
	"github.com/codepathfinder/taintgraph/taint"
)

// DefaultTaintConfig returns the built-in source/sink/sanitizer list for
// Python, the same shape of hardcoded pattern the teacher's
// PatternRegistry.LoadDefaultPatterns seeds before any profile-driven
// pattern is loaded. A deployment normally overrides or extends this via
// Librarian library profiles (§4.8); this is the floor every scan starts
// from even with an empty profile directory.
func DefaultTaintConfig() taint.Config {
	return taint.Config{
		Sources: []taint.SourceSpec{
			{Name: "input", Sensitivity: taint.SensitivityGeneral},
			{Name: "raw_input", Sensitivity: taint.SensitivityGeneral},
			{Name: "request.GET.get", Sensitivity: taint.SensitivityGeneral},
			{Name: "request.POST.get", Sensitivity: taint.SensitivityGeneral},
			{Name: "request.args.get", Sensitivity: taint.SensitivityGeneral},
			{Name: "request.form.get", Sensitivity: taint.SensitivityGeneral},
			{Name: "request.query_params.get", Sensitivity: taint.SensitivityGeneral},
			{Name: "request.headers.get", Sensitivity: taint.SensitivityAuthToken},
			{Name: "request.cookies.get", Sensitivity: taint.SensitivityAuthToken},
			{Name: "os.environ.get", Sensitivity: taint.SensitivitySecret},
			{Name: "os.getenv", Sensitivity: taint.SensitivitySecret},
		},
		Sinks: []taint.SinkSpec{
			{Name: "eval", CweID: "CWE-94"},
			{Name: "exec", CweID: "CWE-94"},
			{Name: "os.system", CweID: "CWE-78"},
			{Name: "subprocess.call", CweID: "CWE-78"},
			{Name: "subprocess.Popen", CweID: "CWE-78"},
			{Name: "cursor.execute", CweID: "CWE-89"},
			{Name: "connection.execute", CweID: "CWE-89"},
			{Name: "render_template_string", CweID: "CWE-79"},
			{Name: "HttpResponse", CweID: "CWE-79"},
			{Name: "pickle.loads", CweID: "CWE-502"},
			{Name: "yaml.load", CweID: "CWE-502"},
			{Name: "etree.parse", CweID: "CWE-611"},
			{Name: "open", CweID: "CWE-22"},
		},
		Sanitizers: []string{
			"html.escape",
			"shlex.quote",
			"sanitize",
			"escape",
			"validate",
			"markupsafe.escape",
		},
	}
}
