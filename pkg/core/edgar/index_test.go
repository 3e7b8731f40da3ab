package edgar

import (
	"testing"
)

const indexHTML = `<html><body><table class="tableFile">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>1</td><td>8-K Current Report</td><td><a href="/Archives/edgar/data/320193/000032019324000001/d8k.htm">d8k.htm</a></td><td>8-K</td><td>10000</td></tr>
<tr><td>2</td><td>Agreement and Plan of Merger</td><td><a href="/Archives/edgar/data/320193/000032019324000001/dex21.htm">dex21.htm</a></td><td>EX-2.1</td><td>500000</td></tr>
<tr><td>3</td><td>Commitment Letter</td><td><a href="/Archives/edgar/data/320193/000032019324000001/dex101.pdf">dex101.pdf</a></td><td>EX-10.1</td><td>80000</td></tr>
<tr><td>4</td><td>Press Release</td><td><a href="/Archives/edgar/data/320193/000032019324000001/dex991.htm">dex991.htm</a></td><td>EX-99.1</td><td>20000</td></tr>
<tr><td>5</td><td>GRAPHIC</td><td><a href="/Archives/edgar/data/320193/000032019324000001/logo.jpg">logo.jpg</a></td><td>GRAPHIC</td><td>5000</td></tr>
</table></body></html>`

func TestParseIndex(t *testing.T) {
	client, err := NewClient(Options{UserAgent: "x y@z"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	exhibits, err := client.ParseIndex([]byte(indexHTML), "320193", "0000320193-24-000001")
	if err != nil {
		t.Fatalf("ParseIndex: %v", err)
	}
	if len(exhibits) != 3 {
		t.Fatalf("got %d exhibits, want 3", len(exhibits))
	}

	merger := exhibits[0]
	if merger.ExhibitType != "EX-2.1" {
		t.Errorf("type = %q, want EX-2.1", merger.ExhibitType)
	}
	if merger.Description != "Agreement and Plan of Merger" {
		t.Errorf("description = %q", merger.Description)
	}
	if merger.URL != "https://www.sec.gov/Archives/edgar/data/0000320193/000032019324000001/dex21.htm" {
		t.Errorf("url = %q", merger.URL)
	}
	if merger.IsPDF {
		t.Error("htm exhibit flagged as PDF")
	}

	commitment := exhibits[1]
	if commitment.ExhibitType != "EX-10.1" || !commitment.IsPDF {
		t.Errorf("pdf exhibit wrong: %+v", commitment)
	}

	press := exhibits[2]
	if press.ExhibitType != "EX-99.1" || press.Filename != "dex991.htm" {
		t.Errorf("press exhibit wrong: %+v", press)
	}
}

func TestParseIndexEmptyPage(t *testing.T) {
	client, _ := NewClient(Options{UserAgent: "x y@z"})
	exhibits, err := client.ParseIndex([]byte("<html><body><p>No documents.</p></body></html>"), "1", "acc")
	if err != nil {
		t.Fatalf("ParseIndex: %v", err)
	}
	if len(exhibits) != 0 {
		t.Errorf("got %d exhibits from empty page, want 0", len(exhibits))
	}
}
