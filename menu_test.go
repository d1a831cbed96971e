package flathill

import "testing"

func TestBuildMenuFiltersAndMarksActive(t *testing.T) {
	menu := []Route{
		{Label: "Home", Path: "index", PathAliases: []string{""}},
		{Label: "Blog", Path: "blog"},
		{Label: "Secret", Path: "secret", Hidden: true},
		{Label: "Members", Path: "members", ShowFor: []string{"_user"}},
		{Label: "Promo", Path: "promo", HideOnPaths: []string{"blog"}},
	}
	rr := &ResolvedRoute{Path: "blog", OriginalPath: "blog"}

	items := BuildMenu(menu, rr, nil)

	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Label
	}
	want := []string{"Home", "Blog"}
	if len(labels) != len(want) {
		t.Fatalf("menu = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("menu = %v, want %v", labels, want)
		}
	}

	if items[0].Active {
		t.Fatalf("home should not be active on blog")
	}
	if !items[1].Active || len(items[1].Classes) != 1 || items[1].Classes[0] != "active" {
		t.Fatalf("blog item = %+v, want active with class", items[1])
	}
	if items[1].URL != "/blog" {
		t.Fatalf("blog URL = %q", items[1].URL)
	}
}

func TestBuildMenuShowForVisibility(t *testing.T) {
	menu := []Route{
		{Label: "Members", Path: "members", ShowFor: []string{"_user"}},
		{Label: "Login", Path: "login", ShowFor: []string{"_guest"}},
	}
	rr := &ResolvedRoute{Path: "index"}

	guest := BuildMenu(menu, rr, nil)
	if len(guest) != 1 || guest[0].Label != "Login" {
		t.Fatalf("guest menu = %+v", guest)
	}

	user := &User{Email: "u@x", Roles: []string{"member"}}
	authed := BuildMenu(menu, rr, user)
	if len(authed) != 1 || authed[0].Label != "Members" {
		t.Fatalf("authed menu = %+v", authed)
	}
}

func TestBuildMenuActiveOnAliasAndViewPath(t *testing.T) {
	menu := []Route{
		{Label: "Home", Path: "index", PathAliases: []string{""}},
		{Label: "Gallery", Path: "gallery", ViewPath: "gallery-view"},
	}

	items := BuildMenu(menu, &ResolvedRoute{Path: ""}, nil)
	if !items[0].Active {
		t.Fatalf("home not active on alias path")
	}

	items = BuildMenu(menu, &ResolvedRoute{Path: "gallery-view", OriginalPath: "gallery/3-x"}, nil)
	if !items[1].Active {
		t.Fatalf("gallery not active on its view path")
	}
}

func TestProcessMenuItemExternalURL(t *testing.T) {
	item := processMenuItem(Route{Label: "Docs", Path: "https://example.com/docs"}, &ResolvedRoute{Path: "index"}, nil)
	if item.URL != "https://example.com/docs" {
		t.Fatalf("external URL = %q", item.URL)
	}
}

func TestProcessMenuItemChildPathPrefix(t *testing.T) {
	parent := &Route{Label: "About", Path: "about"}
	item := processMenuItem(Route{Label: "Team", Path: "team"}, &ResolvedRoute{Path: "about/team"}, parent)
	if item.URL != "/about/team" {
		t.Fatalf("child URL = %q", item.URL)
	}
	if !item.Active {
		t.Fatalf("child should be active on its own path")
	}
}
