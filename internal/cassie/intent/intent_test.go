package intent

import "testing"

func TestDetectPriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Type
	}{
		{"defect beats wrong item", "this is defective and the wrong item", TypeDefect},
		{"defect beats missing", "broken and one item missing", TypeDefect},
		{"wrong item beats missing", "wrong item and another one missing", TypeWrongItem},
		{"missing beats faq triggers", "item missing from my delivery", TypeMissingItem},
		{"human beats bye", "talk to a human, then bye", TypeHuman},
		{"bye beats greeting", "hello and goodbye", TypeBye},
		{"greeting beats faq", "hi, about shipping", TypeGreet},
		{"faq trigger", "what is your return policy", TypeFAQ},
		{"fallback", "something unrelated entirely", TypeFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.text); got.Type != tt.want {
				t.Errorf("Detect(%q).Type = %q, want %q", tt.text, got.Type, tt.want)
			}
		})
	}
}

func TestDetectVocabularies(t *testing.T) {
	tests := []struct {
		text string
		want Type
	}{
		{"the watch arrived damaged", TypeDefect},
		{"I received a different brand", TypeWrongItem},
		{"this is not what i ordered", TypeWrongItem},
		{"order not delivered yet", TypeMissingItem},
		{"partial delivery, one box short", TypeMissingItem},
		{"an item is missing from the parcel", TypeMissingItem},
		{"please connect me to an agent", TypeHuman},
		{"I need a representative to help", TypeHuman},
		{"customer care please", TypeHuman},
		{"end chat", TypeBye},
		{"that's all", TypeBye},
		{"ok thats all", TypeBye},
		{"hey", TypeGreet},
		{"was my card double charged?", TypeFAQ},
		{"need the gst invoice", TypeFAQ},
		{"cash on delivery available?", TypeFAQ},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Detect(tt.text); got.Type != tt.want {
				t.Errorf("Detect(%q).Type = %q, want %q", tt.text, got.Type, tt.want)
			}
		})
	}
}

func TestDetectIssueSummary(t *testing.T) {
	if got := Detect("defective charger").IssueSummary; got != "Defective item" {
		t.Errorf("defect summary = %q, want %q", got, "Defective item")
	}
	if got := Detect("wrong item").IssueSummary; got != "Received wrong item" {
		t.Errorf("wrong item summary = %q, want %q", got, "Received wrong item")
	}
	if got := Detect("what is the return policy").IssueSummary; got != "" {
		t.Errorf("faq summary = %q, want empty", got)
	}
}

func TestExtractOrderID(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"labelled form", "my order id: ORDL12345 please", "ORDL12345"},
		{"labelled with underscore", "order_id ORDL-99-X", "ORDL-99-X"},
		{"bare token", "issue with ORDL777 delivery", "ORDL777"},
		{"first bare token wins", "ORDL111 and also ORDL222", "ORDL111"},
		{"labelled beats earlier bare", "ORDL111, but order id: ORDL222", "ORDL222"},
		{"case preserved", "check ordl12ab now", "ordl12ab"},
		{"too short", "ORDL12", ""},
		{"absent", "no order here", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractOrderID(tt.text); got != tt.want {
				t.Errorf("ExtractOrderID(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsBareOrderID(t *testing.T) {
	if !IsBareOrderID("  ORDL12345  ") {
		t.Error("IsBareOrderID with surrounding whitespace = false, want true")
	}
	if IsBareOrderID("my order is ORDL12345") {
		t.Error("IsBareOrderID with extra words = true, want false")
	}
	if IsBareOrderID("") {
		t.Error("IsBareOrderID(\"\") = true, want false")
	}
}

func TestYesNo(t *testing.T) {
	for _, text := range []string{"yes please", "yeah", "sure", "okay do it", "raise ticket"} {
		if !IsYes(text) {
			t.Errorf("IsYes(%q) = false, want true", text)
		}
	}
	for _, text := range []string{"no", "nope", "not now", "later maybe", "do not"} {
		if !IsNo(text) {
			t.Errorf("IsNo(%q) = false, want true", text)
		}
	}
	if IsNo("this is great") {
		t.Error("IsNo on unrelated text = true, want false")
	}
}

func TestGreetingWholeWordOnly(t *testing.T) {
	// "hi" appears inside "shipping" but must not fire as a greeting.
	if got := Detect("shipping update please"); got.Type == TypeGreet {
		t.Errorf("Detect(shipping...) = greet, want substring containment not to apply")
	}
	if got := Detect("hi there"); got.Type != TypeGreet {
		t.Errorf("Detect(hi there) = %q, want greet", got.Type)
	}
}

func TestExtractEmail(t *testing.T) {
	if got := ExtractEmail("reach me at jo.doe+x@example.co.in thanks"); got != "jo.doe+x@example.co.in" {
		t.Errorf("ExtractEmail = %q, want %q", got, "jo.doe+x@example.co.in")
	}
	if got := ExtractEmail("no address here"); got != "" {
		t.Errorf("ExtractEmail = %q, want empty", got)
	}
}

func TestWantsTicket(t *testing.T) {
	for _, text := range []string{"please open a ticket", "raise ticket for this", "register complaint"} {
		if !WantsTicket(text) {
			t.Errorf("WantsTicket(%q) = false, want true", text)
		}
	}
	if WantsTicket("where is my parcel") {
		t.Error("WantsTicket on plain question = true, want false")
	}
}

func TestHasIssueHint(t *testing.T) {
	for _, text := range []string{"payment failed", "it arrived broken", "partial delivery"} {
		if !HasIssueHint(text) {
			t.Errorf("HasIssueHint(%q) = false, want true", text)
		}
	}
	if HasIssueHint("ORDL12345") {
		t.Error("HasIssueHint on bare order id = true, want false")
	}
}

func TestInferIssueLabel(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"money was debited twice", "payment issues"},
		{"when will my refund arrive", "refund timelines"},
		{"how do exchanges work", "return policy"},
		{"shipping is slow", "delivery time & shipping"},
		{"track my parcel", "order tracking"},
		{"cancel this", "cancellation"},
		{"need to change the address", "address change"},
		{"is cod supported", "cash on delivery"},
		{"send the gst bill", "invoice / gst"},
		{"warranty claim", "warranty"},
		{"does it fit", "size & fit"},
		{"parcel not received", "missing / partial delivery"},
		{"box was broken open", "damaged in transit"},
		{"hello world", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := InferIssueLabel(tt.text); got != tt.want {
				t.Errorf("InferIssueLabel(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
