package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                       "/",
		"/metrics":                               "/metrics",
		"/v1/organizations":                      "/v1/organizations",
		"/v1/organizations/abc":                  "/v1/organizations/:id",
		"/v1/organizations/abc/projects":         "/v1/organizations/:id/projects",
		"/v1/organizations/abc/members/def":      "/v1/organizations/:id/members/:id",
		"/v1/projects/p1/stories":                "/v1/projects/:id/stories",
		"/v1/stories/s1/entries?locale=en":       "/v1/stories/:id/entries",
		"/v1/auth/login":                         "/v1/auth/login",
		"/v1/projects/p1/stories/s1/unknown/tag": "/v1/projects/:id/stories/:id/unknown/tag",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
