package feed

import (
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

const atomFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">
  <title>newest submissions : dealsforindia</title>
  <entry>
    <id>t3_newest1</id>
    <title>Running shoes at 50% off</title>
    <link href="https://www.reddit.com/r/dealsforindia/comments/newest1/"/>
    <updated>2025-06-02T10:30:00+00:00</updated>
    <content type="html">&lt;div class="md"&gt;&lt;p&gt;Grab them at https://shop.example/shoes&lt;/p&gt;&lt;/div&gt;</content>
    <media:thumbnail url="https://preview.redd.it/shoes.jpg"/>
  </entry>
  <entry>
    <id>t3_older22</id>
    <title>Laptop deal</title>
    <link href="https://www.reddit.com/r/dealsforindia/comments/older22/"/>
    <updated>2025-06-02T09:00:00+00:00</updated>
    <content type="html">&lt;div class="md"&gt;&lt;p&gt;Cheap laptop&lt;/p&gt;&lt;/div&gt;</content>
  </entry>
</feed>`

func parseFixture(t *testing.T) []Item {
	t.Helper()
	parsed, err := gofeed.NewParser().ParseString(atomFixture)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return MapItems(parsed.Items)
}

func TestMapItems_AtomEntries(t *testing.T) {
	items := parseFixture(t)

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first.ID != "t3_newest1" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.Title != "Running shoes at 50% off" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Permalink != "https://www.reddit.com/r/dealsforindia/comments/newest1/" {
		t.Errorf("Permalink = %q", first.Permalink)
	}
	if first.MediaURL != "https://preview.redd.it/shoes.jpg" {
		t.Errorf("MediaURL = %q", first.MediaURL)
	}

	want := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)
	if !first.Published.Equal(want) {
		t.Errorf("Published = %v, want %v", first.Published, want)
	}
}

func TestMapItems_PreservesFeedOrder(t *testing.T) {
	items := parseFixture(t)

	if items[0].ID != "t3_newest1" || items[1].ID != "t3_older22" {
		t.Errorf("order lost: %q, %q", items[0].ID, items[1].ID)
	}
}

func TestMapItems_BodyFromContent(t *testing.T) {
	items := parseFixture(t)

	if items[0].Body == "" {
		t.Fatal("body missing")
	}
	if items[1].MediaURL != "" {
		t.Errorf("entry without media got MediaURL %q", items[1].MediaURL)
	}
}

func TestMapItems_FallsBackToLinkForMissingID(t *testing.T) {
	items := MapItems([]*gofeed.Item{
		{Title: "No guid here", Link: "https://example.com/post"},
		nil,
	})

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].ID != "https://example.com/post" {
		t.Errorf("ID fallback = %q", items[0].ID)
	}
}
